package lifecycle

import (
	"fmt"

	"doclife/internal/domain"
	"doclife/internal/validation"
)

func engagementMachine() *Machine {
	focal := []string{"audit_focal_point"}
	return &Machine{
		Kind: domain.KindEngagement,
		OnEdit: []Check{
			{Name: "start before end", Run: typed(func(gc *Context, en *domain.Engagement) (validation.Errors, error) {
				return validation.DateOrder("end_date", en.StartDate, en.EndDate), nil
			})},
			{Name: "report dates not in future", Run: typed(func(gc *Context, en *domain.Engagement) (validation.Errors, error) {
				errs := validation.Errors{}
				today := gc.Today()
				for field, d := range map[string]*domain.Date{
					"date_of_field_visit":            en.DateOfFieldVisit,
					"date_of_draft_report_to_ip":     en.DateOfDraftReportToIP,
					"date_of_comments_by_ip":         en.DateOfCommentsByIP,
					"date_of_draft_report_to_unicef": en.DateOfDraftReportToUnicef,
					"date_of_comments_by_unicef":     en.DateOfCommentsByUnicef,
				} {
					errs.Merge(validation.NotInFuture(field, d, today))
				}
				return errs, nil
			})},
		},
		Transitions: []*Transition{
			{
				Name:  "submit",
				From:  []domain.Status{domain.StatusPartnerContacted},
				To:    domain.StatusReportSubmitted,
				Roles: []string{"auditor"},
				Guards: []Check{
					{Name: "report attachment", Run: typed(func(gc *Context, en *domain.Engagement) (validation.Errors, error) {
						return validation.AttachmentPresent(en.Attachments, domain.AttachmentReport), nil
					})},
					{Name: "findings by engagement type", Run: typed(engagementFindings)},
				},
				Effects: []Effect{stamp("date_of_report_submit")},
			},
			{
				Name:    "send_back",
				From:    []domain.Status{domain.StatusReportSubmitted},
				To:      domain.StatusPartnerContacted,
				Roles:   focal,
				Payload: []string{"send_back_comment"},
				Guards:  []Check{supplied("send_back_comment")},
			},
			{
				Name:    "finalize",
				From:    []domain.Status{domain.StatusReportSubmitted},
				To:      domain.StatusFinal,
				Roles:   focal,
				Effects: []Effect{stamp("date_of_final_report")},
			},
			{
				Name:    "cancel",
				From:    []domain.Status{domain.StatusPartnerContacted, domain.StatusReportSubmitted},
				To:      domain.StatusCancelled,
				Roles:   focal,
				Payload: []string{"cancel_comment"},
				Guards:  []Check{present("cancel_comment")},
				Effects: []Effect{stamp("date_of_cancel")},
			},
		},
	}
}

func engagementFindings(gc *Context, en *domain.Engagement) (validation.Errors, error) {
	errs := validation.Errors{}
	switch en.EngagementType {
	case domain.EngagementAudit:
		if en.AuditedExpenditure == nil {
			errs.Add("audited_expenditure", validation.MsgRequired)
		}
		if en.AuditOpinion == "" {
			errs.Add("audit_opinion", validation.MsgRequired)
		}
	case domain.EngagementSpecialAudit:
		if len(en.SpecificProcedures) == 0 {
			errs.Add("specific_procedures", validation.MsgRequired)
		}
		for i, sp := range en.SpecificProcedures {
			if sp.Finding == "" {
				errs.Add(fmt.Sprintf("specific_procedures[%d].finding", i), validation.MsgRequired)
			}
		}
	case domain.EngagementSpotCheck:
		if en.TotalValue.IsZero() {
			errs.Add("total_value", validation.MsgRequired)
		}
	}
	return errs, nil
}
