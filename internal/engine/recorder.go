package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"doclife/internal/domain"
	"doclife/internal/notify"
)

func (e Engine) activity(ent domain.Entity, actor domain.User, kind domain.ActivityKind, diff domain.Diff) domain.Activity {
	keyEvents := domain.KeyEvents(diff)
	if keyEvents == nil {
		keyEvents = []string{}
	}
	return domain.Activity{
		ID:         e.newID(),
		EntityKind: ent.Kind(),
		EntityID:   ent.Meta().ID,
		ActorID:    actor.ID,
		At:         e.now(),
		Kind:       kind,
		Diff:       diff,
		KeyEvents:  keyEvents,
	}
}

// dispatch builds intents for a committed step and links them to act.
// Dispatcher failures are logged; the write has already committed.
func (e Engine) dispatch(ctx context.Context, o notify.Outcome, act *domain.Activity) []domain.Intent {
	intents, err := e.Notifier.Dispatch(o)
	if err != nil {
		e.Logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"kind": o.Entity.Kind(),
			"id":   o.Entity.Meta().ID,
		}).Error("notification dispatch failed")
		return nil
	}
	for _, in := range intents {
		act.Intents = append(act.Intents, in.ID)
	}
	return intents
}

// record appends audit records and queues intents after commit. Failures
// never undo the write; they are logged for reconciliation.
func (e Engine) record(ctx context.Context, acts []domain.Activity, intents []domain.Intent) {
	for _, act := range acts {
		if err := e.Store.AppendActivity(ctx, act); err != nil {
			e.Logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
				"kind":       act.EntityKind,
				"id":         act.EntityID,
				"activity":   act.Kind,
				"transition": act.Transition,
				"actor":      act.ActorID,
			}).Error("audit record lost")
		}
	}
	if len(intents) == 0 {
		return
	}
	if err := e.Store.EnqueueIntents(ctx, intents); err != nil {
		ids := make([]string, 0, len(intents))
		for _, in := range intents {
			ids = append(ids, in.ID)
		}
		e.Logger.WithContext(ctx).WithError(err).WithField("intents", ids).Error("intent outbox write failed")
	}
}
