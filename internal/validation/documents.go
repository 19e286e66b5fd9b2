package validation

import (
	"fmt"

	"doclife/internal/domain"
)

// Signatures is the signature block shared by agreements and interventions.
type Signatures struct {
	PartnerDate      *domain.Date
	UnicefDate       *domain.Date
	PartnerSignatory string
	UnicefSignatory  string
	Attachments      []domain.Attachment
	DocumentCode     string
	// Field names used in error paths.
	PartnerDateField      string
	UnicefDateField       string
	PartnerSignatoryField string
	UnicefSignatoryField  string
}

// SignatureCompleteness requires both dates, the signatories that are
// configured, and the signed document attachment.
func SignatureCompleteness(s Signatures) Errors {
	errs := Errors{}
	if !domain.Set(s.PartnerDate) {
		errs.Add(s.PartnerDateField, MsgRequired)
	}
	if !domain.Set(s.UnicefDate) {
		errs.Add(s.UnicefDateField, MsgRequired)
	}
	if s.PartnerSignatoryField != "" && s.PartnerSignatory == "" {
		errs.Add(s.PartnerSignatoryField, MsgRequired)
	}
	if s.UnicefSignatoryField != "" && s.UnicefSignatory == "" {
		errs.Add(s.UnicefSignatoryField, MsgRequired)
	}
	if s.DocumentCode != "" && !domain.HasAttachment(s.Attachments, s.DocumentCode) {
		errs.Add("attachments", fmt.Sprintf("%s attachment required", s.DocumentCode))
	}
	return errs
}

// SignaturesNotInFuture covers both signature dates.
func SignaturesNotInFuture(s Signatures, today domain.Date) Errors {
	errs := NotInFuture(s.PartnerDateField, s.PartnerDate, today)
	errs.Merge(NotInFuture(s.UnicefDateField, s.UnicefDate, today))
	return errs
}

// AmendmentsValid requires a signed document and a past signed date on each amendment.
func AmendmentsValid(items []domain.Amendment, today domain.Date) Errors {
	errs := Errors{}
	for i, a := range items {
		prefix := fmt.Sprintf("amendments[%d]", i)
		if a.SignedDocument == "" {
			errs.Add(prefix+".signed_document", MsgRequired)
		}
		if !domain.Set(a.SignedDate) {
			errs.Add(prefix+".signed_date", MsgRequired)
		} else if a.SignedDate.After(today) {
			errs.Add(prefix+".signed_date", MsgFuture)
		}
	}
	return errs
}

// AmendmentsAppendOnly rejects removal of recorded amendments and changes to
// their signed date or signed document.
func AmendmentsAppendOnly(prior, next []domain.Amendment) Errors {
	errs := Errors{}
	if len(next) < len(prior) {
		errs.Add("amendments", MsgAmendmentSet)
		return errs
	}
	for i, before := range prior {
		after := next[i]
		if before.SignedDocument != after.SignedDocument || !sameDate(before.SignedDate, after.SignedDate) {
			errs.Add(fmt.Sprintf("amendments[%d]", i), MsgAmendmentSet)
		}
	}
	return errs
}

func sameDate(a, b *domain.Date) bool {
	if !domain.Set(a) || !domain.Set(b) {
		return domain.Set(a) == domain.Set(b)
	}
	return a.Equal(*b)
}

// AttachmentPresent requires at least one attachment with code.
func AttachmentPresent(items []domain.Attachment, code string) Errors {
	errs := Errors{}
	if !domain.HasAttachment(items, code) {
		errs.Add("attachments", fmt.Sprintf("%s attachment required", code))
	}
	return errs
}

// CommentsPresent is the action-taken check for completing an action point.
func CommentsPresent(ap *domain.ActionPoint) Errors {
	errs := Errors{}
	for _, c := range ap.Comments {
		if c.Text != "" {
			return errs
		}
	}
	errs.Add("comments", MsgRequired)
	return errs
}

// SingleRelation allows at most one parent object on an action point.
func SingleRelation(ap *domain.ActionPoint) Errors {
	errs := Errors{}
	if rel := ap.Related(); len(rel) > 1 {
		for _, f := range rel {
			errs.Add(f, "only one related object may be set")
		}
	}
	return errs
}
