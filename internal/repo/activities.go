package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"doclife/internal/domain"
)

const activityColumns = `seq,id,entity_kind,entity_id,actor_id,at,kind,COALESCE(from_status,''),COALESCE(to_status,''),COALESCE(transition,''),diff_json,key_events_json,intents_json`

func scanActivity(rows *sql.Rows) (domain.Activity, error) {
	var a domain.Activity
	var entityKind, at, kind, from, to, diff, keyEvents, intents string
	if err := rows.Scan(&a.Seq, &a.ID, &entityKind, &a.EntityID, &a.ActorID, &at, &kind, &from, &to, &a.Transition, &diff, &keyEvents, &intents); err != nil {
		return a, errors.Wrap(err, "scan activity")
	}
	a.EntityKind = domain.Kind(entityKind)
	a.Kind = domain.ActivityKind(kind)
	a.FromStatus = domain.Status(from)
	a.ToStatus = domain.Status(to)
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return a, errors.Wrapf(err, "parse activity time %q", at)
	}
	a.At = ts
	if err := json.Unmarshal([]byte(diff), &a.Diff); err != nil {
		return a, errors.Wrap(err, "decode activity diff")
	}
	if err := json.Unmarshal([]byte(keyEvents), &a.KeyEvents); err != nil {
		return a, errors.Wrap(err, "decode key events")
	}
	if err := json.Unmarshal([]byte(intents), &a.Intents); err != nil {
		return a, errors.Wrap(err, "decode activity intents")
	}
	if len(a.Intents) == 0 {
		a.Intents = nil
	}
	return a, nil
}

func (r Repo) queryActivities(ctx context.Context, query string, args ...any) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query activities")
	}
	defer rows.Close()
	out := []domain.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "iterate activities")
}

// Activities returns one entity's audit trail in append order.
func (r Repo) Activities(ctx context.Context, kind domain.Kind, id string) ([]domain.Activity, error) {
	return r.queryActivities(ctx, `SELECT `+activityColumns+` FROM activities WHERE entity_kind=? AND entity_id=? ORDER BY seq`, string(kind), id)
}

// RecentActivities returns the latest records across all entities, oldest first.
func (r Repo) RecentActivities(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryActivities(ctx, `SELECT `+activityColumns+` FROM (SELECT * FROM activities ORDER BY seq DESC LIMIT ?) ORDER BY seq`, limit)
}

// OutboxEntry is an intent with its delivery bookkeeping.
type OutboxEntry struct {
	Seq         int64         `json:"seq"`
	Intent      domain.Intent `json:"intent"`
	CreatedAt   string        `json:"created_at"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	DeliveredAt string        `json:"delivered_at,omitempty"`
}

// Outbox lists intents in enqueue order. pendingOnly skips delivered rows.
func (r Repo) Outbox(ctx context.Context, pendingOnly bool, limit int) ([]OutboxEntry, error) {
	query := `SELECT seq,id,template,recipients_json,context_json,created_at,attempts,COALESCE(last_error,''),COALESCE(delivered_at,'') FROM intents`
	if pendingOnly {
		query += ` WHERE delivered_at IS NULL`
	}
	query += ` ORDER BY seq`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query outbox")
	}
	defer rows.Close()
	out := []OutboxEntry{}
	for rows.Next() {
		var e OutboxEntry
		var recipients, ctxJSON string
		if err := rows.Scan(&e.Seq, &e.Intent.ID, &e.Intent.Template, &recipients, &ctxJSON, &e.CreatedAt, &e.Attempts, &e.LastError, &e.DeliveredAt); err != nil {
			return nil, errors.Wrap(err, "scan intent")
		}
		if err := json.Unmarshal([]byte(recipients), &e.Intent.Recipients); err != nil {
			return nil, errors.Wrap(err, "decode recipients")
		}
		if err := json.Unmarshal([]byte(ctxJSON), &e.Intent.Context); err != nil {
			return nil, errors.Wrap(err, "decode intent context")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate outbox")
}
