package permissions

import (
	"sort"

	"doclife/internal/config"
	"doclife/internal/domain"
)

// Resolver maps a user and an entity instance to the roles the user holds.
type Resolver struct {
	byGroup  map[string][]string
	instance map[string]bool
}

func NewResolver(cfg *config.Config) *Resolver {
	r := &Resolver{byGroup: map[string][]string{}, instance: map[string]bool{}}
	for id, role := range cfg.Roles {
		if role.Instance {
			r.instance[id] = true
			continue
		}
		for _, g := range role.Groups {
			r.byGroup[g] = append(r.byGroup[g], id)
		}
	}
	return r
}

// Roles returns the sorted set of roles; e may be nil for kind-level checks.
func (r *Resolver) Roles(user domain.User, e domain.Entity) []string {
	set := map[string]bool{config.EveryoneRole: true}
	for _, g := range user.Groups {
		for _, role := range r.byGroup[g] {
			set[role] = true
		}
	}
	if e != nil && user.ID != "" {
		for _, role := range instanceRoles(user.ID, e) {
			if r.instance[role] {
				set[role] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for role := range set {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

func instanceRoles(userID string, e domain.Entity) []string {
	var out []string
	add := func(role string, ok bool) {
		if ok {
			out = append(out, role)
		}
	}
	switch v := e.(type) {
	case *domain.Agreement:
		add("authorized_officer", contains(v.AuthorizedOfficers, userID))
		add("partner_signatory", v.PartnerManager == userID)
		add("unicef_signatory", v.SignedBy == userID)
	case *domain.Intervention:
		add("unicef_focal_point", contains(v.UnicefFocalPoints, userID))
		add("partner_focal_point", contains(v.PartnerFocalPoints, userID))
		add("unicef_signatory", v.UnicefSignatory == userID)
		add("partner_signatory", v.PartnerAuthorizedOfficerSignatory == userID)
	case *domain.Engagement:
		add("auditor", contains(v.StaffMembers, userID))
		add("authorized_officer", contains(v.AuthorizedOfficers, userID))
	case *domain.MonitoringActivity:
		add("visit_lead", v.VisitLead == userID)
		add("team_member", contains(v.TeamMembers, userID))
	case *domain.ActionPoint:
		add("action_point_author", v.Author == userID)
		add("action_point_assigner", v.AssignedBy == userID)
		add("action_point_assignee", v.AssignedTo == userID)
	}
	return out
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
