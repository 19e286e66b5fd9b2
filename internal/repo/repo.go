// Package repo is the SQLite store behind the engine. Entities are stored as
// JSON documents keyed by (kind, id) with a version column for
// compare-and-swap saves.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	"doclife/internal/domain"
	"doclife/internal/engine"
	"doclife/internal/events"
)

type Repo struct {
	DB     *sql.DB
	Events events.Writer
}

func New(db *sql.DB) Repo {
	return Repo{DB: db, Events: events.Writer{DB: db}}
}

var _ engine.Store = Repo{}

func (r Repo) Begin(ctx context.Context) (engine.Tx, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	return &repoTx{tx: tx}, nil
}

func (r Repo) AppendActivity(ctx context.Context, a domain.Activity) error {
	return r.Events.AppendActivity(ctx, a)
}

func (r Repo) EnqueueIntents(ctx context.Context, intents []domain.Intent) error {
	return r.Events.EnqueueIntents(ctx, intents)
}

type repoTx struct {
	tx *sql.Tx
}

func notFound(kind domain.Kind, id string) error {
	return domain.Errorf(domain.ErrKindNotFound, "%s %s not found", kind, id)
}

// Get reads one entity. The transaction already holds the write lock, so
// forUpdate needs nothing extra.
func (t *repoTx) Get(ctx context.Context, kind domain.Kind, id string, forUpdate bool) (domain.Entity, error) {
	var body string
	err := t.tx.QueryRowContext(ctx, `SELECT body_json FROM entities WHERE kind=? AND id=?`, string(kind), id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, notFound(kind, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select entity")
	}
	e, err := domain.Decode(kind, []byte(body))
	if err != nil {
		return nil, domain.Internal(err, "decode stored entity")
	}
	return e, nil
}

// Find narrows by status in SQL and compares the remaining fields on the
// decoded document.
func (t *repoTx) Find(ctx context.Context, q domain.Query) ([]domain.Entity, error) {
	want := map[string]json.RawMessage{}
	for field, v := range q.Where {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, domain.Internal(err, "encode query")
		}
		want[field] = raw
	}
	query := `SELECT body_json FROM entities WHERE kind=?`
	args := []any{string(q.Kind)}
	if raw, ok := want["status"]; ok {
		var status string
		if json.Unmarshal(raw, &status) == nil {
			query += ` AND status=?`
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query entities")
	}
	defer rows.Close()
	var out []domain.Entity
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Wrap(err, "scan entity")
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &fields); err != nil {
			return nil, domain.Internal(err, "decode stored entity")
		}
		if !matches(fields, want) {
			continue
		}
		e, err := domain.Decode(q.Kind, []byte(body))
		if err != nil {
			return nil, domain.Internal(err, "decode stored entity")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate entities")
}

func matches(fields, want map[string]json.RawMessage) bool {
	for field, raw := range want {
		if !domain.SameJSON(fields[field], raw) {
			return false
		}
	}
	return true
}

func (t *repoTx) Insert(ctx context.Context, e domain.Entity) error {
	meta := e.Meta()
	body, err := json.Marshal(e)
	if err != nil {
		return domain.Internal(err, "encode entity")
	}
	var exists int
	err = t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE kind=? AND id=?`, string(e.Kind()), meta.ID).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "check entity")
	}
	if exists > 0 {
		return domain.Errorf(domain.ErrKindConflict, "%s %s already exists", e.Kind(), meta.ID)
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO entities(kind,id,status,version,body_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		string(e.Kind()), meta.ID, string(meta.Status), meta.Version, string(body), stamp(meta.CreatedAt), stamp(meta.UpdatedAt))
	return errors.Wrap(err, "insert entity")
}

// Save writes e if the stored version still equals expected.
func (t *repoTx) Save(ctx context.Context, e domain.Entity, expected int64) error {
	meta := e.Meta()
	body, err := json.Marshal(e)
	if err != nil {
		return domain.Internal(err, "encode entity")
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE entities SET status=?, version=?, body_json=?, updated_at=? WHERE kind=? AND id=? AND version=?`,
		string(meta.Status), meta.Version, string(body), stamp(meta.UpdatedAt), string(e.Kind()), meta.ID, expected)
	if err != nil {
		return errors.Wrap(err, "update entity")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := t.Get(ctx, e.Kind(), meta.ID, false); err != nil {
		return err
	}
	return domain.Errorf(domain.ErrKindStaleState, "%s %s changed concurrently", e.Kind(), meta.ID)
}

func (t *repoTx) Delete(ctx context.Context, kind domain.Kind, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM entities WHERE kind=? AND id=?`, string(kind), id)
	if err != nil {
		return errors.Wrap(err, "delete entity")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func (t *repoTx) Commit() error {
	err := t.tx.Commit()
	if err == sql.ErrTxDone {
		return nil
	}
	return errors.Wrap(err, "commit")
}

func (t *repoTx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return errors.Wrap(err, "rollback")
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// EntitySummary is one row of a listing.
type EntitySummary struct {
	Kind      domain.Kind   `json:"kind"`
	ID        string        `json:"id"`
	Status    domain.Status `json:"status"`
	Version   int64         `json:"version"`
	UpdatedAt string        `json:"updated_at"`
}

// ListEntities lists one kind, optionally filtered by status, newest first.
func (r Repo) ListEntities(ctx context.Context, kind domain.Kind, status domain.Status, limit int) ([]EntitySummary, error) {
	query := `SELECT kind,id,status,version,updated_at FROM entities WHERE kind=?`
	args := []any{string(kind)}
	if status != "" {
		query += ` AND status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list entities")
	}
	defer rows.Close()
	out := []EntitySummary{}
	for rows.Next() {
		var s EntitySummary
		var k, st string
		if err := rows.Scan(&k, &s.ID, &st, &s.Version, &s.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan entity summary")
		}
		s.Kind, s.Status = domain.Kind(k), domain.Status(st)
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate entities")
}

// CountByStatus reports how many entities of kind sit in each status.
func (r Repo) CountByStatus(ctx context.Context, kind domain.Kind) (map[domain.Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM entities WHERE kind=? GROUP BY status`, string(kind))
	if err != nil {
		return nil, errors.Wrap(err, "count entities")
	}
	defer rows.Close()
	out := map[domain.Status]int{}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		out[domain.Status(s)] = n
	}
	return out, errors.Wrap(rows.Err(), "iterate counts")
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
