// Package events writes the append-only activity log and the notification
// intent outbox. Both are written after the entity change has committed.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"doclife/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) now() string {
	if w.Now == nil {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return w.Now().UTC().Format(time.RFC3339Nano)
}

// AppendActivity stores one audit record.
func (w Writer) AppendActivity(ctx context.Context, a domain.Activity) error {
	diff := a.Diff
	if diff == nil {
		diff = domain.Diff{}
	}
	diffJSON, err := json.Marshal(diff)
	if err != nil {
		return errors.Wrap(err, "marshal activity diff")
	}
	keyEvents := a.KeyEvents
	if keyEvents == nil {
		keyEvents = []string{}
	}
	keyJSON, err := json.Marshal(keyEvents)
	if err != nil {
		return errors.Wrap(err, "marshal key events")
	}
	intents := a.Intents
	if intents == nil {
		intents = []string{}
	}
	intentsJSON, err := json.Marshal(intents)
	if err != nil {
		return errors.Wrap(err, "marshal activity intents")
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO activities(id,entity_kind,entity_id,actor_id,at,kind,from_status,to_status,transition,diff_json,key_events_json,intents_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, string(a.EntityKind), a.EntityID, a.ActorID, a.At.UTC().Format(time.RFC3339Nano), string(a.Kind),
		nullable(string(a.FromStatus)), nullable(string(a.ToStatus)), nullable(a.Transition),
		string(diffJSON), string(keyJSON), string(intentsJSON))
	return errors.Wrap(err, "insert activity")
}

// EnqueueIntents adds intents to the outbox in one transaction.
func (w Writer) EnqueueIntents(ctx context.Context, intents []domain.Intent) error {
	if len(intents) == 0 {
		return nil
	}
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin outbox")
	}
	defer tx.Rollback()
	ts := w.now()
	for _, in := range intents {
		recipients, err := json.Marshal(in.Recipients)
		if err != nil {
			return errors.Wrap(err, "marshal recipients")
		}
		ctxJSON, err := json.Marshal(in.Context)
		if err != nil {
			return errors.Wrap(err, "marshal intent context")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO intents(id,template,recipients_json,context_json,created_at) VALUES (?,?,?,?,?)`,
			in.ID, in.Template, string(recipients), string(ctxJSON), ts); err != nil {
			return errors.Wrapf(err, "insert intent %s", in.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit outbox")
}

// MarkDelivered stamps an outbox row as delivered.
func (w Writer) MarkDelivered(ctx context.Context, id string) error {
	_, err := w.DB.ExecContext(ctx, `UPDATE intents SET delivered_at=?, attempts=attempts+1, last_error=NULL WHERE id=?`, w.now(), id)
	return errors.Wrap(err, "mark intent delivered")
}

// MarkFailed records a failed delivery attempt; the row stays pending.
func (w Writer) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := w.DB.ExecContext(ctx, `UPDATE intents SET attempts=attempts+1, last_error=? WHERE id=?`, nullable(msg), id)
	return errors.Wrap(err, "mark intent failed")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
