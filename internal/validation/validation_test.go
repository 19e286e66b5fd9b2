package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclife/internal/domain"
)

var today = domain.MustDate("2024-03-15")

func agreementSignatures(a *domain.Agreement) Signatures {
	return Signatures{
		PartnerDate:      a.SignedByPartnerDate,
		UnicefDate:       a.SignedByUnicefDate,
		Attachments:      a.Attachments,
		DocumentCode:     domain.AttachmentSignedAgreement,
		PartnerDateField: "signed_by_partner_date",
		UnicefDateField:  "signed_by_unicef_date",
	}
}

func TestSignatureCompleteness(t *testing.T) {
	a := &domain.Agreement{SignedByPartnerDate: domain.DatePtr("2024-01-05")}
	errs := SignatureCompleteness(agreementSignatures(a))
	assert.Equal(t, []string{"attachments", "signed_by_unicef_date"}, errs.Paths())
	assert.Equal(t, []string{"signed_agreement attachment required"}, errs["attachments"])

	a.SignedByUnicefDate = domain.DatePtr("2024-01-06")
	a.Attachments = []domain.Attachment{{Code: domain.AttachmentSignedAgreement, File: "pca.pdf"}}
	assert.True(t, SignatureCompleteness(agreementSignatures(a)).Empty())
}

func TestSignaturesNotInFuture(t *testing.T) {
	s := agreementSignatures(&domain.Agreement{
		SignedByPartnerDate: domain.DatePtr("2024-03-15"),
		SignedByUnicefDate:  domain.DatePtr("2024-03-16"),
	})
	errs := SignaturesNotInFuture(s, today)
	assert.Equal(t, []string{"signed_by_unicef_date"}, errs.Paths())
	assert.Equal(t, []string{MsgFuture}, errs["signed_by_unicef_date"])
}

func TestDateOrder(t *testing.T) {
	assert.True(t, DateOrder("end", domain.DatePtr("2024-01-01"), domain.DatePtr("2024-01-01")).Empty())
	assert.True(t, DateOrder("end", nil, domain.DatePtr("2024-01-01")).Empty())
	errs := DateOrder("end", domain.DatePtr("2024-02-01"), domain.DatePtr("2024-01-01"))
	assert.Equal(t, []string{MsgBeforeStart}, errs["end"])
}

func TestLatest(t *testing.T) {
	assert.Nil(t, Latest(nil, nil))
	got := Latest(domain.DatePtr("2024-01-05"), nil, domain.DatePtr("2024-02-01"))
	require.NotNil(t, got)
	assert.Equal(t, "2024-02-01", got.String())
}

func TestAmendmentsValid(t *testing.T) {
	items := []domain.Amendment{
		{Number: "1", SignedDate: domain.DatePtr("2024-01-10"), SignedDocument: "amd1.pdf"},
		{Number: "2", SignedDate: domain.DatePtr("2024-04-01")},
	}
	errs := AmendmentsValid(items, today)
	assert.Equal(t, []string{"amendments[1].signed_date", "amendments[1].signed_document"}, errs.Paths())
	assert.Equal(t, []string{MsgFuture}, errs["amendments[1].signed_date"])
}

func TestAmendmentsAppendOnly(t *testing.T) {
	prior := []domain.Amendment{{Number: "1", SignedDate: domain.DatePtr("2024-01-10"), SignedDocument: "amd1.pdf"}}

	grown := append(append([]domain.Amendment{}, prior...), domain.Amendment{Number: "2"})
	assert.True(t, AmendmentsAppendOnly(prior, grown).Empty())

	assert.Equal(t, []string{MsgAmendmentSet}, AmendmentsAppendOnly(prior, nil)["amendments"])

	edited := []domain.Amendment{{Number: "1", SignedDate: domain.DatePtr("2024-01-11"), SignedDocument: "amd1.pdf"}}
	assert.Equal(t, []string{"amendments[0]"}, AmendmentsAppendOnly(prior, edited).Paths())

	renumbered := []domain.Amendment{{Number: "1a", SignedDate: domain.DatePtr("2024-01-10"), SignedDocument: "amd1.pdf"}}
	assert.True(t, AmendmentsAppendOnly(prior, renumbered).Empty())
}

func TestDuplicatePCA(t *testing.T) {
	cutoff := domain.MustDate("2015-07-01")
	existing := &domain.Agreement{
		Base:             domain.Base{ID: "a1", Status: domain.StatusSigned},
		AgreementType:    domain.AgreementPCA,
		Partner:          "P1",
		CountryProgramme: "CP1",
		Start:            domain.DatePtr("2024-01-01"),
	}
	candidate := &domain.Agreement{
		Base:             domain.Base{ID: "a2", Status: domain.StatusDraft},
		AgreementType:    domain.AgreementPCA,
		Partner:          "P1",
		CountryProgramme: "CP1",
	}

	err := DuplicatePCA(candidate, []*domain.Agreement{existing}, cutoff)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindConflict, domain.KindOf(err))
	assert.Contains(t, err.Error(), "duplicate PCA")

	// Agreements that started before the cutoff are grandfathered.
	old := *existing
	old.Start = domain.DatePtr("2014-01-01")
	assert.NoError(t, DuplicatePCA(candidate, []*domain.Agreement{&old}, cutoff))

	other := *existing
	other.CountryProgramme = "CP2"
	assert.NoError(t, DuplicatePCA(candidate, []*domain.Agreement{&other}, cutoff))

	// The candidate never conflicts with itself.
	assert.NoError(t, DuplicatePCA(existing, []*domain.Agreement{existing}, cutoff))

	mou := *candidate
	mou.AgreementType = domain.AgreementMOU
	assert.NoError(t, DuplicatePCA(&mou, []*domain.Agreement{existing}, cutoff))
}

func TestInterventionAgreement(t *testing.T) {
	pca := &domain.Agreement{AgreementType: domain.AgreementPCA, CountryProgramme: "CP1", Start: domain.DatePtr("2024-01-01")}
	pd := &domain.Intervention{DocumentType: domain.DocumentPD, CountryProgramme: "CP2", Start: domain.DatePtr("2023-12-01")}
	errs := InterventionAgreement(pd, pca)
	assert.Equal(t, []string{"country_programme", "start"}, errs.Paths())

	ssfa := &domain.Intervention{DocumentType: domain.DocumentSSFA}
	assert.Equal(t, []string{"document_type"}, InterventionAgreement(ssfa, pca).Paths())
}

func TestSSFADatesMatch(t *testing.T) {
	a := &domain.Agreement{AgreementType: domain.AgreementSSFA, Start: domain.DatePtr("2024-01-01"), End: domain.DatePtr("2024-06-30")}
	pd := &domain.Intervention{Start: domain.DatePtr("2024-01-01"), End: domain.DatePtr("2024-07-31")}
	assert.Equal(t, []string{"end"}, SSFADatesMatch(a, pd).Paths())
}

func TestSingleSSFAIntervention(t *testing.T) {
	pd := &domain.Intervention{Base: domain.Base{ID: "pd2"}, DocumentType: domain.DocumentSSFA}
	cancelled := &domain.Intervention{Base: domain.Base{ID: "pd1", Status: domain.StatusCancelled}}
	assert.True(t, SingleSSFAIntervention(pd, []*domain.Intervention{cancelled, pd}).Empty())

	live := &domain.Intervention{Base: domain.Base{ID: "pd3", Status: domain.StatusDraft}}
	assert.Equal(t, []string{"agreement"}, SingleSSFAIntervention(pd, []*domain.Intervention{live}).Paths())
}

func TestActionPointChecks(t *testing.T) {
	ap := &domain.ActionPoint{Comments: []domain.Comment{{Author: "u1"}}}
	assert.Equal(t, []string{MsgRequired}, CommentsPresent(ap)["comments"])
	ap.Comments = append(ap.Comments, domain.Comment{Author: "u1", Text: "done"})
	assert.True(t, CommentsPresent(ap).Empty())

	ap.Engagement = "e1"
	assert.True(t, SingleRelation(ap).Empty())
	ap.Intervention = "pd1"
	assert.Equal(t, []string{"engagement", "intervention"}, SingleRelation(ap).Paths())
}

func TestRequiredAndRigid(t *testing.T) {
	before := &domain.Agreement{Partner: "P1", AgreementType: domain.AgreementPCA, Start: domain.DatePtr("2024-01-01")}
	errs, err := RequiredOf(before, []string{"partner", "start", "end", "authorized_officers"})
	require.NoError(t, err)
	assert.Equal(t, []string{"authorized_officers", "end"}, errs.Paths())

	after := *before
	after.Start = domain.DatePtr("2024-02-01")
	after.End = domain.DatePtr("2024-12-31")
	errs, err = RigidOf(before, &after, []string{"partner", "start"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"start": {MsgImmutable}}, map[string][]string(errs))
}

func TestStruct(t *testing.T) {
	a := &domain.Agreement{
		AgreementType: "LOI",
		Attachments:   []domain.Attachment{{Code: "signed_agreement"}},
	}
	errs, err := Struct(a, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"agreement_type", "attachments[0].file", "partner"}, errs.Paths())
	assert.Equal(t, []string{MsgRequired}, errs["partner"])
	assert.Equal(t, []string{"must be one of: PCA MOU SSFA GTC"}, errs["agreement_type"])

	errs, err = Struct(a, map[string]bool{"attachments": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"attachments[0].file"}, errs.Paths())
}

func TestErrorsConvert(t *testing.T) {
	assert.NoError(t, Errors{}.Err())
	errs := Errors{}
	errs.Add("end", MsgRequired)
	errs.Add("end", MsgRequired)
	assert.Len(t, errs["end"], 1)
	err := errs.Err()
	assert.Equal(t, domain.ErrKindValidationFailed, domain.KindOf(err))
}
