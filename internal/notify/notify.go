// Package notify turns transition outcomes and key events into notification
// intents. It never delivers anything.
package notify

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	"doclife/internal/config"
	"doclife/internal/domain"
)

// Outcome describes one committed write.
type Outcome struct {
	Entity     domain.Entity
	Actor      domain.User
	Transition string
	FromStatus domain.Status
	ToStatus   domain.Status
	KeyEvents  []string
}

type Dispatcher struct {
	rules []config.NotificationRule
	// NewID is swapped in tests for stable ids.
	NewID func() string
}

func NewDispatcher(cfg *config.Config) *Dispatcher {
	return &Dispatcher{rules: cfg.Notifications, NewID: func() string { return uuid.NewString() }}
}

// Dispatch returns the intents for an outcome. A transition rule always
// yields its intent, even with no resolvable recipients; a key-event rule
// with nobody to tell yields nothing.
func (d *Dispatcher) Dispatch(o Outcome) ([]domain.Intent, error) {
	kind := o.Entity.Kind()
	var fields map[string]json.RawMessage
	var out []domain.Intent
	for _, rule := range d.rules {
		if rule.Kind != string(kind) || !d.matches(rule, o) {
			continue
		}
		if fields == nil {
			var err error
			if fields, err = domain.Fields(o.Entity); err != nil {
				return nil, domain.Internal(err, "read recipients")
			}
		}
		recipients := resolve(rule.Recipients, fields, o.Actor)
		if len(recipients) == 0 && rule.Transition == "" {
			continue
		}
		out = append(out, domain.Intent{
			ID:         d.NewID(),
			Template:   rule.Template,
			Recipients: recipients,
			Context:    contextOf(o, fields),
		})
	}
	return out, nil
}

func (d *Dispatcher) matches(rule config.NotificationRule, o Outcome) bool {
	if rule.Transition != "" {
		return rule.Transition == o.Transition
	}
	for _, ev := range o.KeyEvents {
		if ev == rule.KeyEvent {
			return true
		}
	}
	return false
}

// resolve reads user ids out of scalar or list fields, deduped and sorted.
func resolve(selectors []string, fields map[string]json.RawMessage, actor domain.User) []string {
	set := map[string]bool{}
	for _, sel := range selectors {
		if sel == config.RecipientActor {
			set[actor.ID] = true
			continue
		}
		raw, ok := fields[sel]
		if !ok {
			continue
		}
		var one string
		if err := json.Unmarshal(raw, &one); err == nil {
			set[one] = true
			continue
		}
		var many []string
		if err := json.Unmarshal(raw, &many); err == nil {
			for _, id := range many {
				set[id] = true
			}
		}
	}
	delete(set, "")
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func contextOf(o Outcome, fields map[string]json.RawMessage) map[string]any {
	meta := o.Entity.Meta()
	ctx := map[string]any{
		"entity_kind": string(o.Entity.Kind()),
		"entity_id":   meta.ID,
		"actor_id":    o.Actor.ID,
		"status":      string(meta.Status),
	}
	if o.Transition != "" {
		ctx["transition"] = o.Transition
		ctx["from_status"] = string(o.FromStatus)
		ctx["to_status"] = string(o.ToStatus)
	}
	if len(o.KeyEvents) > 0 {
		ctx["key_events"] = append([]string(nil), o.KeyEvents...)
	}
	for _, ref := range []string{"agreement_number", "reference_number", "title", "description"} {
		var s string
		if raw, ok := fields[ref]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			ctx["reference"] = s
			break
		}
	}
	return ctx
}
