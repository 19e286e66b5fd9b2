package permissions

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclife/internal/config"
	"doclife/internal/domain"
)

func newEvaluator(t *testing.T, cfg *config.Config) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(cfg)
	require.NoError(t, err)
	return ev
}

func entityIn(kind domain.Kind, status domain.Status) domain.Entity {
	e := domain.New(kind)
	e.Meta().Status = status
	return e
}

func boolPtr(b bool) *bool { return &b }

func TestDefaultMatrixEditImpliesView(t *testing.T) {
	cfg := config.Default()
	ev := newEvaluator(t, cfg)
	roles := []string{config.EveryoneRole}
	for role := range cfg.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, kind := range domain.Kinds() {
		for _, status := range kind.Statuses() {
			variants := []domain.Entity{entityIn(kind, status)}
			if kind == domain.KindIntervention {
				court := entityIn(kind, status).(*domain.Intervention)
				court.UnicefCourt = true
				variants = append(variants, court)
			}
			for _, e := range variants {
				for _, role := range roles {
					p, err := ev.EvaluateRoles([]string{role}, e)
					require.NoError(t, err, "%s/%s/%s", kind, status, role)
					for field, edit := range p.Edit {
						if edit {
							assert.True(t, p.View[field], "%s/%s/%s: %s editable but not viewable", kind, status, role, field)
						}
					}
					for _, f := range domain.SystemFields {
						assert.False(t, p.Edit[f], "%s/%s/%s: system field %s editable", kind, status, role, f)
					}
				}
			}
		}
	}
}

func TestCourtDecidesWhichSideEdits(t *testing.T) {
	ev := newEvaluator(t, config.Default())
	pd := entityIn(domain.KindIntervention, domain.StatusDraft).(*domain.Intervention)
	partnerSide := []string{config.EveryoneRole, "partner_focal_point"}
	unicefSide := []string{config.EveryoneRole, "unicef_focal_point"}

	pd.UnicefCourt = false
	p, err := ev.EvaluateRoles(partnerSide, pd)
	require.NoError(t, err)
	assert.True(t, p.Edit["title"])
	u, err := ev.EvaluateRoles(unicefSide, pd)
	require.NoError(t, err)
	assert.False(t, u.Edit["title"])
	assert.True(t, u.View["title"])
	assert.True(t, u.Edit["unicef_court"])

	pd.UnicefCourt = true
	p, err = ev.EvaluateRoles(partnerSide, pd)
	require.NoError(t, err)
	assert.False(t, p.Edit["title"])
	assert.True(t, p.View["title"])
	assert.True(t, p.Edit["unicef_court"])
	u, err = ev.EvaluateRoles(unicefSide, pd)
	require.NoError(t, err)
	assert.True(t, u.Edit["title"])

	// Admin sits on neither side.
	a, err := ev.EvaluateRoles([]string{"admin"}, pd)
	require.NoError(t, err)
	assert.True(t, a.Edit["title"])
}

func TestExplicitStatusRowOverridesWildcard(t *testing.T) {
	cfg := config.Default()
	cfg.Matrix["agreement"][config.Wildcard]["partnership_manager"] = map[string]config.Cell{
		config.Wildcard: {Edit: boolPtr(true)},
	}
	cfg.Matrix["agreement"]["draft"]["partnership_manager"] = map[string]config.Cell{
		"end":     {Edit: boolPtr(true)},
		"partner": {View: boolPtr(false)},
	}
	ev := newEvaluator(t, cfg)
	roles := []string{"partnership_manager"}

	draft, err := ev.EvaluateRoles(roles, entityIn(domain.KindAgreement, domain.StatusDraft))
	require.NoError(t, err)
	assert.True(t, draft.Edit["end"])
	assert.False(t, draft.Edit["start"])
	assert.True(t, draft.View["start"])
	assert.False(t, draft.View["partner"])

	// ended has no explicit row, so the wildcard status row applies.
	ended, err := ev.EvaluateRoles(roles, entityIn(domain.KindAgreement, domain.StatusEnded))
	require.NoError(t, err)
	assert.True(t, ended.Edit["start"])
	assert.True(t, ended.Edit["partner"])
}

func TestExplicitFieldOverridesWildcardField(t *testing.T) {
	ev := newEvaluator(t, config.Default())
	p, err := ev.EvaluateRoles([]string{"auditor"}, entityIn(domain.KindEngagement, domain.StatusPartnerContacted))
	require.NoError(t, err)
	assert.True(t, p.Edit["date_of_field_visit"])
	assert.False(t, p.Edit["partner"])
	assert.True(t, p.View["partner"])
}

func TestUnknownStatusIsInternal(t *testing.T) {
	ev := newEvaluator(t, config.Default())
	_, err := ev.EvaluateRoles([]string{"admin"}, entityIn(domain.KindAgreement, domain.Status("archived")))
	require.Error(t, err)
	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.ErrKindInternal, de.Kind)

	_, err = ev.EditableFields(domain.User{ID: "u-1", Groups: []string{"Admin"}}, entityIn(domain.KindAgreement, domain.Status("archived")))
	require.Error(t, err)
}

func TestEditableAndViewableFields(t *testing.T) {
	ev := newEvaluator(t, config.Default())
	pm := domain.User{ID: "pm-1", Groups: []string{"Partnership Manager"}}
	partner := domain.User{ID: "partner-1", Groups: []string{"Partner"}}

	draft := entityIn(domain.KindAgreement, domain.StatusDraft)
	editable, err := ev.EditableFields(pm, draft)
	require.NoError(t, err)
	assert.True(t, sort.StringsAreSorted(editable))
	assert.Contains(t, editable, "partner")
	assert.Contains(t, editable, "end")
	assert.NotContains(t, editable, "status")
	assert.NotContains(t, editable, "id")

	signed := entityIn(domain.KindAgreement, domain.StatusSigned)
	editable, err = ev.EditableFields(pm, signed)
	require.NoError(t, err)
	assert.Equal(t, []string{"amendments", "attachments", "authorized_officers", "end"}, editable)

	editable, err = ev.EditableFields(partner, signed)
	require.NoError(t, err)
	assert.Empty(t, editable)
	viewable, err := ev.ViewableFields(partner, signed)
	require.NoError(t, err)
	assert.ElementsMatch(t, domain.FieldNames(domain.KindAgreement), viewable)
}
