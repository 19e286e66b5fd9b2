package lifecycle

import (
	"slices"

	"doclife/internal/domain"
	"doclife/internal/validation"
)

var agreementManagers = []string{"partnership_manager", "pme"}

func agreementMachine() *Machine {
	return &Machine{
		Kind: domain.KindAgreement,
		OnEdit: []Check{
			{Name: "start before end", Run: typed(func(gc *Context, a *domain.Agreement) (validation.Errors, error) {
				return validation.DateOrder("end", a.Start, a.End), nil
			})},
			{Name: "signatures", Run: typed(agreementSignatureFields)},
			{Name: "amendments", Run: typed(func(gc *Context, a *domain.Agreement) (validation.Errors, error) {
				errs := validation.AmendmentsValid(a.Amendments, gc.Today())
				if p, ok := prior[*domain.Agreement](gc); ok {
					errs.Merge(validation.AmendmentsAppendOnly(p.Amendments, a.Amendments))
				}
				return errs, nil
			})},
		},
		Transitions: []*Transition{
			{
				Name:   "sign",
				From:   []domain.Status{domain.StatusDraft},
				To:     domain.StatusSigned,
				Roles:  agreementManagers,
				Guards: signedEntry(),
			},
			{
				Name:    "suspend",
				From:    []domain.Status{domain.StatusDraft, domain.StatusSigned},
				To:      domain.StatusSuspended,
				Roles:   agreementManagers,
				Effects: []Effect{cascadeToProgrammeDocuments(domain.StatusSuspended, domain.StatusSigned, domain.StatusActive)},
			},
			{
				Name:  "reactivate",
				From:  []domain.Status{domain.StatusSuspended},
				To:    domain.StatusSigned,
				Roles: agreementManagers,
				Guards: append([]Check{
					{Name: "end not passed", Run: typed(func(gc *Context, a *domain.Agreement) (validation.Errors, error) {
						errs := validation.Errors{}
						if domain.Set(a.End) && a.End.Before(gc.Today()) {
							errs.Add("end", "has already passed")
						}
						return errs, nil
					})},
				}, signedEntry()...),
			},
			{
				Name:  "end",
				From:  []domain.Status{domain.StatusSigned},
				To:    domain.StatusEnded,
				Roles: agreementManagers,
				Guards: []Check{
					{Name: "end reached", Run: typed(func(gc *Context, a *domain.Agreement) (validation.Errors, error) {
						return endReached(a.End, gc.Today()), nil
					})},
				},
			},
			{
				Name:  "terminate",
				From:  []domain.Status{domain.StatusSigned, domain.StatusSuspended},
				To:    domain.StatusTerminated,
				Roles: agreementManagers,
				Guards: []Check{
					{Name: "termination document", Run: typed(func(gc *Context, a *domain.Agreement) (validation.Errors, error) {
						if a.AgreementType != domain.AgreementPCA {
							return validation.Errors{}, nil
						}
						return validation.AttachmentPresent(a.Attachments, domain.AttachmentTermination), nil
					})},
				},
				Effects: []Effect{cascadeToProgrammeDocuments(domain.StatusTerminated, domain.StatusSigned, domain.StatusActive, domain.StatusSuspended)},
			},
			{
				Name:    "cancel",
				From:    []domain.Status{domain.StatusDraft},
				To:      domain.StatusCancelled,
				Roles:   agreementManagers,
				Payload: []string{"termination_reason"},
				Guards:  []Check{present("termination_reason")},
			},
		},
	}
}

// signedEntry is checked on every row that lands an agreement in signed,
// whatever status it leaves.
func signedEntry() []Check {
	return []Check{
		{Name: "one signed PCA per partner and country programme", Run: typed(uniquePCA)},
		{Name: "signing dates", Run: typed(func(gc *Context, a *domain.Agreement) (validation.Errors, error) {
			errs := validation.Errors{}
			today := gc.Today()
			if domain.Set(a.Start) && a.Start.After(today) {
				errs.Add("start", "cannot sign before the agreement starts")
			}
			if !domain.Set(a.End) {
				errs.Add("end", validation.MsgRequired)
			}
			return errs, nil
		})},
		{Name: "signature completeness", Run: typed(func(gc *Context, a *domain.Agreement) (validation.Errors, error) {
			if a.AgreementType == domain.AgreementSSFA {
				return validation.Errors{}, nil
			}
			return validation.SignatureCompleteness(agreementSignatures(a)), nil
		})},
		{Name: "SSFA signed through its intervention", Run: typed(ssfaInterventionSigned)},
	}
}

// cascadeToProgrammeDocuments moves the agreement's PD and SPD interventions
// that sit in one of from to the agreement's new status.
func cascadeToProgrammeDocuments(to domain.Status, from ...domain.Status) Effect {
	return Effect{Name: "cascade " + string(to) + " to programme documents", Apply: func(gc *Context) error {
		if gc.Lookup == nil {
			return nil
		}
		found, err := gc.Lookup.Find(gc.Ctx, domain.Query{Kind: domain.KindIntervention, Where: map[string]any{"agreement": gc.Entity.Meta().ID}})
		if err != nil {
			return err
		}
		for _, e := range found {
			pd, ok := e.(*domain.Intervention)
			if !ok || (pd.DocumentType != domain.DocumentPD && pd.DocumentType != domain.DocumentSPD) {
				continue
			}
			locked, err := gc.Lookup.Get(gc.Ctx, domain.KindIntervention, pd.ID, true)
			if err != nil {
				return err
			}
			if !slices.Contains(from, locked.Meta().Status) {
				continue
			}
			gc.Cascades = append(gc.Cascades, Cascade{Entity: locked, To: to})
		}
		return nil
	}}
}

func agreementSignatures(a *domain.Agreement) validation.Signatures {
	return validation.Signatures{
		PartnerDate:      a.SignedByPartnerDate,
		UnicefDate:       a.SignedByUnicefDate,
		Attachments:      a.Attachments,
		DocumentCode:     domain.AttachmentSignedAgreement,
		PartnerDateField: "signed_by_partner_date",
		UnicefDateField:  "signed_by_unicef_date",
	}
}

// agreementSignatureFields keeps signature dates in the past and, unless
// policy allows it, off SSFA agreements.
func agreementSignatureFields(gc *Context, a *domain.Agreement) (validation.Errors, error) {
	sigs := agreementSignatures(a)
	errs := validation.SignaturesNotInFuture(sigs, gc.Today())
	if a.AgreementType == domain.AgreementSSFA && gc.Config.RejectSSFASignatures() {
		const msg = "SSFA signatures are recorded on the intervention"
		if domain.Set(a.SignedByPartnerDate) {
			errs.Add("signed_by_partner_date", msg)
		}
		if domain.Set(a.SignedByUnicefDate) {
			errs.Add("signed_by_unicef_date", msg)
		}
	}
	return errs, nil
}

func uniquePCA(gc *Context, a *domain.Agreement) (validation.Errors, error) {
	if a.AgreementType != domain.AgreementPCA || gc.Lookup == nil {
		return validation.Errors{}, nil
	}
	found, err := gc.Lookup.Find(gc.Ctx, domain.Query{Kind: domain.KindAgreement, Where: map[string]any{
		"partner":           a.Partner,
		"country_programme": a.CountryProgramme,
		"status":            string(domain.StatusSigned),
	}})
	if err != nil {
		return nil, err
	}
	others := make([]*domain.Agreement, 0, len(found))
	for _, e := range found {
		if o, ok := e.(*domain.Agreement); ok {
			others = append(others, o)
		}
	}
	if err := validation.DuplicatePCA(a, others, gc.Config.Cutoff()); err != nil {
		return nil, err
	}
	return validation.Errors{}, nil
}

func ssfaInterventionSigned(gc *Context, a *domain.Agreement) (validation.Errors, error) {
	errs := validation.Errors{}
	if a.AgreementType != domain.AgreementSSFA || gc.Lookup == nil {
		return errs, nil
	}
	found, err := gc.Lookup.Find(gc.Ctx, domain.Query{Kind: domain.KindIntervention, Where: map[string]any{"agreement": a.ID}})
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		switch e.Meta().Status {
		case domain.StatusSigned, domain.StatusActive, domain.StatusEnded, domain.StatusClosed:
			return errs, nil
		}
	}
	errs.Add("status", "an SSFA agreement is signed through its intervention")
	return errs, nil
}

func endReached(end *domain.Date, today domain.Date) validation.Errors {
	errs := validation.Errors{}
	if !domain.Set(end) {
		errs.Add("end", validation.MsgRequired)
	} else if !today.After(*end) {
		errs.Add("end", "has not been reached")
	}
	return errs
}
