package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclife/internal/config"
	"doclife/internal/domain"
)

func newDispatcher() *Dispatcher {
	d := NewDispatcher(config.Default())
	n := 0
	d.NewID = func() string {
		n++
		return fmt.Sprintf("intent-%d", n)
	}
	return d
}

func TestDispatchOnTransition(t *testing.T) {
	d := newDispatcher()
	pd := &domain.Intervention{
		Base:               domain.Base{ID: "pd1", Status: domain.StatusSigned},
		Title:              "Water and sanitation",
		UnicefFocalPoints:  []string{"ufp-2", "ufp-1"},
		PartnerFocalPoints: []string{"ufp-1", "pfp-1", ""},
	}
	intents, err := d.Dispatch(Outcome{
		Entity:     pd,
		Actor:      domain.User{ID: "pm-1"},
		Transition: "sign",
		FromStatus: domain.StatusReview,
		ToStatus:   domain.StatusSigned,
		KeyEvents:  []string{domain.KeyEventStatusUpdate},
	})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	in := intents[0]
	assert.Equal(t, "intent-1", in.ID)
	assert.Equal(t, "intervention.signed", in.Template)
	assert.Equal(t, []string{"pfp-1", "ufp-1", "ufp-2"}, in.Recipients)
	assert.Equal(t, "pd1", in.Context["entity_id"])
	assert.Equal(t, "review", in.Context["from_status"])
	assert.Equal(t, "signed", in.Context["to_status"])
	assert.Equal(t, "Water and sanitation", in.Context["reference"])
}

func TestDispatchTransitionWithoutRecipients(t *testing.T) {
	d := newDispatcher()
	a := &domain.Agreement{Base: domain.Base{ID: "a1", Status: domain.StatusSigned}, AgreementNumber: "PCA/2024/01"}
	intents, err := d.Dispatch(Outcome{Entity: a, Actor: domain.User{ID: "pm-1"}, Transition: "sign"})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "agreement.signed", intents[0].Template)
	assert.NotNil(t, intents[0].Recipients)
	assert.Empty(t, intents[0].Recipients)
	assert.Equal(t, "PCA/2024/01", intents[0].Context["reference"])
}

func TestDispatchSkipsKeyEventWithoutRecipients(t *testing.T) {
	d := newDispatcher()
	ap := &domain.ActionPoint{Base: domain.Base{ID: "ap1", Status: domain.StatusOpen}}
	intents, err := d.Dispatch(Outcome{Entity: ap, Actor: domain.User{ID: "pm-1"}, KeyEvents: []string{domain.KeyEventReassign}})
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestDispatchOnKeyEvent(t *testing.T) {
	d := newDispatcher()
	ap := &domain.ActionPoint{Base: domain.Base{ID: "ap1", Status: domain.StatusOpen}, AssignedTo: "staff-3", Description: "Verify stock"}

	intents, err := d.Dispatch(Outcome{Entity: ap, Actor: domain.User{ID: "pm-1"}, KeyEvents: []string{domain.KeyEventReassign}})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "action_points.action_point.assigned", intents[0].Template)
	assert.Equal(t, []string{"staff-3"}, intents[0].Recipients)
	assert.Equal(t, "Verify stock", intents[0].Context["reference"])

	intents, err = d.Dispatch(Outcome{Entity: ap, Actor: domain.User{ID: "pm-1"}, KeyEvents: []string{domain.KeyEventCourtChange}})
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestDispatchActorRecipient(t *testing.T) {
	d := newDispatcher()
	ma := &domain.MonitoringActivity{Base: domain.Base{ID: "m1", Status: domain.StatusDraft}}
	intents, err := d.Dispatch(Outcome{Entity: ma, Actor: domain.User{ID: "lead-1"}, Transition: "reject"})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, []string{"lead-1"}, intents[0].Recipients)
}

func TestDispatchIgnoresOtherKinds(t *testing.T) {
	d := newDispatcher()
	en := &domain.Engagement{Base: domain.Base{ID: "e1"}, AuthorizedOfficers: []string{"ao-1"}}
	intents, err := d.Dispatch(Outcome{Entity: en, Transition: "sign"})
	require.NoError(t, err)
	assert.Empty(t, intents)
}
