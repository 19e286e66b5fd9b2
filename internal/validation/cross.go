package validation

import (
	"fmt"

	"doclife/internal/domain"
)

// DuplicatePCA returns a conflict when another signed PCA for the same
// partner and country programme starts after cutoff.
func DuplicatePCA(candidate *domain.Agreement, others []*domain.Agreement, cutoff domain.Date) error {
	if candidate.AgreementType != domain.AgreementPCA {
		return nil
	}
	for _, o := range others {
		if o.ID == candidate.ID || o.AgreementType != domain.AgreementPCA {
			continue
		}
		if o.Partner != candidate.Partner || o.CountryProgramme != candidate.CountryProgramme {
			continue
		}
		if o.Status != domain.StatusSigned {
			continue
		}
		if domain.Set(o.Start) && o.Start.After(cutoff) {
			return &domain.Error{
				Kind: domain.ErrKindConflict,
				Message: fmt.Sprintf("duplicate PCA: partner %s already has signed PCA %s for country programme %s",
					candidate.Partner, o.ID, candidate.CountryProgramme),
				Fields: map[string][]string{"country_programme": {"a signed PCA already exists for this partner"}},
			}
		}
	}
	return nil
}

// SSFADatesMatch requires an SSFA intervention to span its agreement's dates.
func SSFADatesMatch(agreement *domain.Agreement, pd *domain.Intervention) Errors {
	errs := Errors{}
	if agreement.AgreementType != domain.AgreementSSFA {
		return errs
	}
	if !sameDate(agreement.Start, pd.Start) {
		errs.Add("start", "must equal the SSFA agreement start")
	}
	if !sameDate(agreement.End, pd.End) {
		errs.Add("end", "must equal the SSFA agreement end")
	}
	return errs
}

// InterventionAgreement covers the document type and country programme rules
// linking a PD to its agreement.
func InterventionAgreement(pd *domain.Intervention, agreement *domain.Agreement) Errors {
	errs := Errors{}
	switch pd.DocumentType {
	case domain.DocumentPD, domain.DocumentSPD:
		if agreement.AgreementType != domain.AgreementPCA {
			errs.Add("document_type", "programme documents require a PCA agreement")
		}
		if pd.CountryProgramme != "" && agreement.CountryProgramme != "" && pd.CountryProgramme != agreement.CountryProgramme {
			errs.Add("country_programme", "must match the agreement country programme")
		}
		errs.Merge(NotBefore("start", pd.Start, agreement.Start, "cannot start before the agreement"))
	case domain.DocumentSSFA:
		if agreement.AgreementType != domain.AgreementSSFA {
			errs.Add("document_type", "SSFA documents require an SSFA agreement")
		}
	}
	return errs
}

// SingleSSFAIntervention allows one intervention per SSFA agreement.
func SingleSSFAIntervention(pd *domain.Intervention, siblings []*domain.Intervention) Errors {
	errs := Errors{}
	if pd.DocumentType != domain.DocumentSSFA {
		return errs
	}
	for _, s := range siblings {
		if s.ID != pd.ID && s.Status != domain.StatusCancelled {
			errs.Add("agreement", "an SSFA agreement may have only one intervention")
			break
		}
	}
	return errs
}
