package lifecycle

import (
	"encoding/json"

	"doclife/internal/domain"
	"doclife/internal/validation"
)

func monitoringMachine() *Machine {
	planner := []string{"fm_user"}
	field := []string{"visit_lead", "team_member"}
	return &Machine{
		Kind: domain.KindMonitoringActivity,
		OnEdit: []Check{
			{Name: "start before end", Run: typed(func(gc *Context, ma *domain.MonitoringActivity) (validation.Errors, error) {
				return validation.DateOrder("end_date", ma.StartDate, ma.EndDate), nil
			})},
		},
		Transitions: []*Transition{
			{
				Name:  "mark_details_configured",
				From:  []domain.Status{domain.StatusDraft},
				To:    domain.StatusChecklist,
				Roles: planner,
				Guards: []Check{
					{Name: "third party monitor", Run: typed(func(gc *Context, ma *domain.MonitoringActivity) (validation.Errors, error) {
						errs := validation.Errors{}
						if ma.MonitorType == domain.MonitorTPM && ma.TPMPartner == "" {
							errs.Add("tpm_partner", validation.MsgRequired)
						}
						return errs, nil
					})},
				},
			},
			{Name: "revert_details", From: []domain.Status{domain.StatusChecklist}, To: domain.StatusDraft, Roles: planner},
			{Name: "mark_checklist_configured", From: []domain.Status{domain.StatusChecklist}, To: domain.StatusReview, Roles: planner},
			{Name: "revert_checklist", From: []domain.Status{domain.StatusReview}, To: domain.StatusChecklist, Roles: planner},
			{
				Name:   "assign",
				From:   []domain.Status{domain.StatusReview},
				To:     domain.StatusAssigned,
				Roles:  planner,
				Guards: []Check{{Name: "team", Run: typed(monitoringTeam)}},
			},
			{Name: "accept", From: []domain.Status{domain.StatusAssigned}, To: domain.StatusDataCollection, Roles: field},
			{
				Name:    "reject",
				From:    []domain.Status{domain.StatusAssigned},
				To:      domain.StatusDraft,
				Roles:   field,
				Payload: []string{"reject_reason"},
				Guards:  []Check{supplied("reject_reason")},
			},
			{Name: "mark_data_collected", From: []domain.Status{domain.StatusDataCollection}, To: domain.StatusReportFinalization, Roles: field},
			{Name: "submit", From: []domain.Status{domain.StatusReportFinalization}, To: domain.StatusSubmitted, Roles: []string{"visit_lead"}},
			{
				Name:    "reject_report",
				From:    []domain.Status{domain.StatusSubmitted},
				To:      domain.StatusReportFinalization,
				Roles:   planner,
				Payload: []string{"report_reject_reason"},
				Guards:  []Check{supplied("report_reject_reason")},
			},
			{Name: "complete", From: []domain.Status{domain.StatusSubmitted}, To: domain.StatusCompleted, Roles: planner},
			{
				Name: "cancel",
				From: []domain.Status{domain.StatusDraft, domain.StatusChecklist, domain.StatusReview, domain.StatusAssigned,
					domain.StatusDataCollection, domain.StatusReportFinalization},
				To:      domain.StatusCancelled,
				Roles:   planner,
				Payload: []string{"cancel_reason"},
				Guards:  []Check{present("cancel_reason")},
			},
		},
	}
}

func monitoringTeam(gc *Context, ma *domain.MonitoringActivity) (validation.Errors, error) {
	errs := validation.Errors{}
	if ma.VisitLead == "" {
		errs.Add("visit_lead", validation.MsgRequired)
	}
	if ma.MonitorType != domain.MonitorStaff {
		return errs, nil
	}
	if len(ma.TeamMembers) == 0 {
		errs.Add("team_members", validation.MsgRequired)
		return errs, nil
	}
	if ma.VisitLead != "" {
		for _, m := range ma.TeamMembers {
			if m == ma.VisitLead {
				return errs, nil
			}
		}
		errs.Add("visit_lead", "must be a team member")
	}
	return errs, nil
}

func actionPointMachine() *Machine {
	return &Machine{
		Kind: domain.KindActionPoint,
		Init: func(e domain.Entity, supplied map[string]json.RawMessage, actor domain.User) {
			ap := e.(*domain.ActionPoint)
			if ap.Author == "" {
				ap.Author = actor.ID
			}
			if ap.AssignedBy == "" {
				ap.AssignedBy = actor.ID
			}
		},
		OnEdit: []Check{
			{Name: "single related object", Run: typed(func(gc *Context, ap *domain.ActionPoint) (validation.Errors, error) {
				return validation.SingleRelation(ap), nil
			})},
		},
		Transitions: []*Transition{
			{
				Name:  "complete",
				From:  []domain.Status{domain.StatusOpen},
				To:    domain.StatusCompleted,
				Roles: []string{"action_point_assignee", "action_point_assigner", "action_point_author", "pme"},
				Guards: []Check{
					{Name: "action taken", Run: typed(func(gc *Context, ap *domain.ActionPoint) (validation.Errors, error) {
						return validation.CommentsPresent(ap), nil
					})},
				},
				Effects: []Effect{stamp("date_of_completion")},
			},
		},
	}
}
