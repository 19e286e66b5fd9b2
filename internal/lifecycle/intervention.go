package lifecycle

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"doclife/internal/domain"
	"doclife/internal/validation"
)

var pdManagers = []string{"partnership_manager", "pme"}

func interventionMachine() *Machine {
	return &Machine{
		Kind: domain.KindIntervention,
		Init: func(e domain.Entity, supplied map[string]json.RawMessage, _ domain.User) {
			pd := e.(*domain.Intervention)
			if _, ok := supplied["unicef_court"]; !ok {
				pd.UnicefCourt = true
			}
		},
		OnEdit: []Check{
			{Name: "start before end", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
				return validation.DateOrder("end", pd.Start, pd.End), nil
			})},
			{Name: "signatures not in future", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
				return validation.SignaturesNotInFuture(pdSignatures(pd), gc.Today()), nil
			})},
			{Name: "amendments", Run: typed(pdAmendments)},
			{Name: "agreement", Run: typed(pdAgreement)},
		},
		Transitions: []*Transition{
			{
				Name:    "send_to_partner",
				From:    []domain.Status{domain.StatusDevelopment},
				To:      domain.StatusDraft,
				Roles:   []string{"unicef_focal_point", "partnership_manager"},
				Effects: []Effect{stamp("date_sent_to_partner"), setField("unicef_court", false)},
			},
			{
				Name:    "submit",
				From:    []domain.Status{domain.StatusDraft},
				To:      domain.StatusReview,
				Roles:   []string{"unicef_focal_point", "partner_focal_point", "partnership_manager"},
				Guards:  []Check{notInAmendment},
				Effects: []Effect{setField("unicef_court", true)},
			},
			{
				Name:  "reject",
				From:  []domain.Status{domain.StatusReview},
				To:    domain.StatusDraft,
				Roles: []string{"unicef_focal_point", "partnership_manager"},
			},
			{
				Name:  "sign",
				From:  []domain.Status{domain.StatusReview},
				To:    domain.StatusSigned,
				Roles: []string{"partnership_manager", "unicef_focal_point", "pme"},
				Guards: []Check{
					{Name: "signature completeness", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
						return validation.SignatureCompleteness(pdSignatures(pd)), nil
					})},
					{Name: "start after signatures", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
						last := validation.Latest(pd.SignedByPartnerDate, pd.SignedByUnicefDate)
						return validation.NotBefore("start", pd.Start, last, "cannot be before the last signature date"), nil
					})},
					{Name: "agreement in force", Run: typed(agreementInForce)},
					{Name: "budget", Run: typed(budgetSet)},
					notInAmendment,
				},
			},
			{
				Name:  "activate",
				From:  []domain.Status{domain.StatusSigned},
				To:    domain.StatusActive,
				Roles: pdManagers,
				Guards: []Check{
					{Name: "started", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
						errs := validation.Errors{}
						if domain.Set(pd.Start) && pd.Start.After(gc.Today()) {
							errs.Add("start", "has not been reached")
						}
						return errs, nil
					})},
					{Name: "agreement signed", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
						errs := validation.Errors{}
						if pd.DocumentType == domain.DocumentSSFA {
							return errs, nil
						}
						a, err := gc.Agreement(pd.Agreement)
						if err != nil {
							return nil, err
						}
						if a == nil || a.Status != domain.StatusSigned {
							errs.Add("agreement", "must be signed")
						}
						return errs, nil
					})},
					{Name: "budget", Run: typed(budgetSet)},
				},
			},
			{
				Name:  "end",
				From:  []domain.Status{domain.StatusActive},
				To:    domain.StatusEnded,
				Roles: pdManagers,
				Guards: []Check{
					{Name: "end reached", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
						return endReached(pd.End, gc.Today()), nil
					})},
					notInAmendment,
				},
			},
			{
				Name:  "close",
				From:  []domain.Status{domain.StatusEnded},
				To:    domain.StatusClosed,
				Roles: pdManagers,
				Guards: []Check{
					{Name: "end reached", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
						return endReached(pd.End, gc.Today()), nil
					})},
					{Name: "funds reservations settled", Run: typed(fundsSettled)},
					{Name: "final partnership review", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
						if pd.PlannedBudget.UnicefCash.LessThan(gc.Config.FinalReviewThreshold()) {
							return validation.Errors{}, nil
						}
						return validation.AttachmentPresent(pd.Attachments, domain.AttachmentFinalPartnershipReview), nil
					})},
				},
			},
			{
				Name:  "suspend",
				From:  []domain.Status{domain.StatusSigned, domain.StatusActive},
				To:    domain.StatusSuspended,
				Roles: pdManagers,
			},
			{
				Name:  "reactivate",
				From:  []domain.Status{domain.StatusSuspended},
				To:    domain.StatusActive,
				Roles: pdManagers,
			},
			{
				Name:  "terminate",
				From:  []domain.Status{domain.StatusSigned, domain.StatusActive, domain.StatusSuspended},
				To:    domain.StatusTerminated,
				Roles: pdManagers,
				Guards: []Check{
					{Name: "termination document", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
						return validation.AttachmentPresent(pd.Attachments, domain.AttachmentTermination), nil
					})},
				},
			},
			{
				Name:    "cancel",
				From:    []domain.Status{domain.StatusDevelopment, domain.StatusDraft, domain.StatusReview},
				To:      domain.StatusCancelled,
				Roles:   pdManagers,
				Payload: []string{"cancel_justification"},
				Guards:  []Check{present("cancel_justification")},
			},
		},
	}
}

var notInAmendment = Check{Name: "not in amendment", Run: typed(func(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
	errs := validation.Errors{}
	if pd.InAmendment {
		errs.Add("in_amendment", "the document is being amended")
	}
	return errs, nil
})}

func pdSignatures(pd *domain.Intervention) validation.Signatures {
	return validation.Signatures{
		PartnerDate:           pd.SignedByPartnerDate,
		UnicefDate:            pd.SignedByUnicefDate,
		PartnerSignatory:      pd.PartnerAuthorizedOfficerSignatory,
		UnicefSignatory:       pd.UnicefSignatory,
		Attachments:           pd.Attachments,
		DocumentCode:          domain.AttachmentSignedPD,
		PartnerDateField:      "signed_by_partner_date",
		UnicefDateField:       "signed_by_unicef_date",
		PartnerSignatoryField: "partner_authorized_officer_signatory",
		UnicefSignatoryField:  "unicef_signatory",
	}
}

func pdAmendments(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
	errs := validation.AmendmentsValid(pd.Amendments, gc.Today())
	p, ok := prior[*domain.Intervention](gc)
	if !ok {
		return errs, nil
	}
	errs.Merge(validation.AmendmentsAppendOnly(p.Amendments, pd.Amendments))
	if pd.InAmendment && !p.InAmendment && len(pd.Amendments) <= len(p.Amendments) {
		errs.Add("in_amendment", "requires a new amendment")
	}
	return errs, nil
}

// pdAgreement checks the links between a PD and its agreement.
func pdAgreement(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
	errs := validation.Errors{}
	if pd.Agreement == "" || gc.Lookup == nil {
		return errs, nil
	}
	a, err := gc.Agreement(pd.Agreement)
	if err != nil {
		return nil, err
	}
	if a == nil {
		errs.Add("agreement", "not found")
		return errs, nil
	}
	errs.Merge(validation.InterventionAgreement(pd, a))
	errs.Merge(validation.SSFADatesMatch(a, pd))
	if pd.DocumentType == domain.DocumentSSFA {
		found, err := gc.Lookup.Find(gc.Ctx, domain.Query{Kind: domain.KindIntervention, Where: map[string]any{"agreement": a.ID}})
		if err != nil {
			return nil, err
		}
		siblings := make([]*domain.Intervention, 0, len(found))
		for _, e := range found {
			if s, ok := e.(*domain.Intervention); ok {
				siblings = append(siblings, s)
			}
		}
		errs.Merge(validation.SingleSSFAIntervention(pd, siblings))
	}
	return errs, nil
}

func agreementInForce(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
	errs := validation.Errors{}
	a, err := gc.Agreement(pd.Agreement)
	if err != nil {
		return nil, err
	}
	if a == nil {
		errs.Add("agreement", "not found")
		return errs, nil
	}
	switch a.Status {
	case domain.StatusSuspended, domain.StatusTerminated:
		errs.Add("agreement", "is "+string(a.Status))
	}
	return errs, nil
}

func budgetSet(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
	errs := validation.Errors{}
	if !pd.PlannedBudget.Total().IsPositive() {
		errs.Add("planned_budget", "must be greater than zero")
	}
	return errs, nil
}

func fundsSettled(gc *Context, pd *domain.Intervention) (validation.Errors, error) {
	errs := validation.Errors{}
	total, actual, outstanding := decimal.Zero, decimal.Zero, decimal.Zero
	for _, fr := range pd.FundsReservations {
		total = total.Add(fr.TotalAmount)
		actual = actual.Add(fr.ActualAmount)
		outstanding = outstanding.Add(fr.OutstandingAmount)
	}
	if !total.Equal(actual) {
		errs.Add("funds_reservations", "total amount must match actual disbursements")
	}
	if !outstanding.IsZero() {
		errs.Add("funds_reservations", "outstanding amount must be zero")
	}
	return errs, nil
}
