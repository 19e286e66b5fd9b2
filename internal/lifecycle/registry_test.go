package lifecycle

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclife/internal/config"
	"doclife/internal/domain"
)

type allowAll struct{}

func (allowAll) Allowed([]string, domain.Kind, string) (bool, error) { return true, nil }

type denyAll struct{}

func (denyAll) Allowed([]string, domain.Kind, string) (bool, error) { return false, nil }

// fakeLookup serves agreements from a map.
type fakeLookup map[string]domain.Entity

func (f fakeLookup) Get(_ context.Context, kind domain.Kind, id string, _ bool) (domain.Entity, error) {
	e, ok := f[id]
	if !ok || e.Kind() != kind {
		return nil, domain.Errorf(domain.ErrKindNotFound, "%s %s not found", kind, id)
	}
	return e, nil
}

func (f fakeLookup) Find(_ context.Context, q domain.Query) ([]domain.Entity, error) {
	var out []domain.Entity
	for _, e := range f {
		if e.Kind() == q.Kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(config.Default())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func testContext(e domain.Entity, lookup Lookup) *Context {
	return &Context{
		Ctx:    context.Background(),
		Entity: e,
		Prior:  e,
		Actor:  domain.User{ID: "u1"},
		Now:    time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Config: config.Default(),
		Lookup: lookup,
	}
}

func TestEveryStatusReachable(t *testing.T) {
	r := newRegistry(t)
	for _, kind := range domain.Kinds() {
		want := append([]domain.Status(nil), kind.Statuses()...)
		got := r.Reachable(kind)
		assert.ElementsMatch(t, want, got, "kind %s", kind)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	r := newRegistry(t)
	for _, kind := range domain.Kinds() {
		for _, s := range kind.Statuses() {
			if kind.IsTerminal(s) {
				assert.Empty(t, r.From(kind, s), "%s %s is terminal", kind, s)
			}
		}
	}
}

func TestConfigOverridesTransitionRoles(t *testing.T) {
	cfg := config.Default()
	cfg.Transitions = map[string]map[string]config.TransitionRule{
		"agreement": {"suspend": {Roles: []string{"admin"}}},
	}
	r, err := NewRegistry(cfg)
	require.NoError(t, err)
	row, ok := r.Lookup(domain.KindAgreement, "suspend")
	require.True(t, ok)
	assert.Equal(t, []string{"admin"}, row.Roles)

	cfg.Transitions = map[string]map[string]config.TransitionRule{
		"agreement": {"approve": {Roles: []string{"admin"}}},
	}
	_, err = NewRegistry(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approve")
}

func TestNotificationMustNameTransition(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications = append(cfg.Notifications, config.NotificationRule{
		Kind:       "agreement",
		Transition: "approve",
		Template:   "agreement.approved",
		Recipients: []string{"authorized_officers"},
	})
	_, err := NewRegistry(cfg)
	require.Error(t, err)
}

func TestExecuteOrder(t *testing.T) {
	r := newRegistry(t)
	a := &domain.Agreement{Base: domain.Base{ID: "a1", Status: domain.StatusSigned}, Partner: "P1", AgreementType: domain.AgreementPCA}

	_, err := r.Execute(testContext(a, nil), "approve", allowAll{})
	assert.Equal(t, domain.ErrKindUnknownTransition, domain.KindOf(err))

	_, err = r.Execute(testContext(a, nil), "sign", denyAll{})
	assert.Equal(t, domain.ErrKindIllegalTransition, domain.KindOf(err), "source status is checked before permission")

	_, err = r.Execute(testContext(a, nil), "suspend", denyAll{})
	assert.Equal(t, domain.ErrKindForbidden, domain.KindOf(err))

	gc := testContext(a, nil)
	gc.Payload = map[string]json.RawMessage{"partner": json.RawMessage(`"P2"`)}
	_, err = r.Execute(gc, "suspend", allowAll{})
	assert.Equal(t, domain.ErrKindValidationFailed, domain.KindOf(err))
}

func TestExecuteAppliesPayloadAndEffects(t *testing.T) {
	r := newRegistry(t)
	en := &domain.Engagement{
		Base:           domain.Base{ID: "e1", Status: domain.StatusPartnerContacted},
		Partner:        "P1",
		EngagementType: domain.EngagementAudit,
	}
	gc := testContext(en, nil)
	gc.Payload = map[string]json.RawMessage{"cancel_comment": json.RawMessage(`"duplicate request"`)}
	row, err := r.Execute(gc, "cancel", allowAll{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, row.To)

	got := gc.Entity.(*domain.Engagement)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, "duplicate request", got.CancelComment)
	require.NotNil(t, got.DateOfCancel)
	assert.Equal(t, "2024-03-15", got.DateOfCancel.String())
	assert.Equal(t, domain.StatusPartnerContacted, en.Status, "the input instance is left alone")
}

func TestExecuteAggregatesGuardErrors(t *testing.T) {
	r := newRegistry(t)
	ma := &domain.MonitoringActivity{
		Base:        domain.Base{ID: "m1", Status: domain.StatusReview},
		MonitorType: domain.MonitorStaff,
	}
	_, err := r.Execute(testContext(ma, nil), "assign", allowAll{})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrKindValidationFailed, de.Kind)
	assert.Contains(t, de.Fields, "visit_lead")
	assert.Contains(t, de.Fields, "team_members")
}

func TestSendBackNeedsFreshComment(t *testing.T) {
	r := newRegistry(t)
	en := &domain.Engagement{
		Base:            domain.Base{ID: "e1", Status: domain.StatusReportSubmitted},
		Partner:         "P1",
		EngagementType:  domain.EngagementAudit,
		SendBackComment: "from an earlier round",
	}
	_, err := r.Execute(testContext(en, nil), "send_back", allowAll{})
	assert.Equal(t, domain.ErrKindValidationFailed, domain.KindOf(err))
}

func TestUniquePCAIsConflict(t *testing.T) {
	r := newRegistry(t)
	signed := &domain.Agreement{
		Base:             domain.Base{ID: "a1", Status: domain.StatusSigned},
		Partner:          "P1",
		AgreementType:    domain.AgreementPCA,
		CountryProgramme: "CP1",
		Start:            domain.DatePtr("2024-01-01"),
	}
	draft := &domain.Agreement{
		Base:             domain.Base{ID: "a2", Status: domain.StatusDraft},
		Partner:          "P1",
		AgreementType:    domain.AgreementPCA,
		CountryProgramme: "CP1",
	}
	lookup := fakeLookup{"a1": signed, "a2": draft}
	_, err := r.Execute(testContext(draft, lookup), "sign", allowAll{})
	assert.Equal(t, domain.ErrKindConflict, domain.KindOf(err))
}

func TestInterventionCourtEffects(t *testing.T) {
	r := newRegistry(t)
	agreement := &domain.Agreement{
		Base:             domain.Base{ID: "a1", Status: domain.StatusSigned},
		Partner:          "P1",
		AgreementType:    domain.AgreementPCA,
		CountryProgramme: "CP1",
	}
	pd := &domain.Intervention{
		Base:         domain.Base{ID: "pd1", Status: domain.StatusDevelopment},
		Agreement:    "a1",
		DocumentType: domain.DocumentPD,
		Title:        "Nutrition",
		UnicefCourt:  true,
	}
	gc := testContext(pd, fakeLookup{"a1": agreement})
	_, err := r.Execute(gc, "send_to_partner", allowAll{})
	require.NoError(t, err)
	sent := gc.Entity.(*domain.Intervention)
	assert.False(t, sent.UnicefCourt)
	assert.Equal(t, "2024-03-15", sent.DateSentToPartner.String())
}

func TestInitDefaults(t *testing.T) {
	r := newRegistry(t)
	pd := &domain.Intervention{}
	r.Init(pd, nil, domain.User{ID: "u1"})
	assert.True(t, pd.UnicefCourt)

	pd = &domain.Intervention{}
	r.Init(pd, map[string]json.RawMessage{"unicef_court": json.RawMessage("false")}, domain.User{ID: "u1"})
	assert.False(t, pd.UnicefCourt)

	ap := &domain.ActionPoint{}
	r.Init(ap, nil, domain.User{ID: "u1"})
	assert.Equal(t, "u1", ap.Author)
	assert.Equal(t, "u1", ap.AssignedBy)
}

func TestGrantCoversCreateAndDelete(t *testing.T) {
	r := newRegistry(t)
	granted := map[string]bool{}
	require.NoError(t, r.Grant(recorder(granted)))
	assert.True(t, granted["partnership_manager|agreement|sign"])
	assert.True(t, granted["audit_focal_point|engagement|create"])
	assert.True(t, granted["action_point_author|action_point|delete"])
	assert.False(t, granted["partner_member|agreement|sign"])
}

type recorder map[string]bool

func (r recorder) Allow(role string, kind domain.Kind, action string) error {
	r[role+"|"+string(kind)+"|"+action] = true
	return nil
}

func TestGraph(t *testing.T) {
	r := newRegistry(t)
	dot := r.Graph(domain.KindActionPoint)
	assert.True(t, strings.HasPrefix(dot, "digraph action_point {"))
	assert.Contains(t, dot, `"open" -> "completed" [label="complete"];`)
}
