// Package store provides an in-memory transactional store for the engine.
// Documents are kept as JSON so every read hands out an independent copy.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"doclife/internal/domain"
	"doclife/internal/engine"
)

type docKey struct {
	kind domain.Kind
	id   string
}

type doc struct {
	data    []byte
	version int64
	seq     int64
}

// Memory implements engine.Store. Get with forUpdate takes a per-entity lock
// held until the transaction ends.
type Memory struct {
	mu         sync.RWMutex
	docs       map[docKey]doc
	locks      map[docKey]*sync.Mutex
	activities []domain.Activity
	intents    []domain.Intent
	seq        int64

	// FailActivities makes AppendActivity fail; for recorder tests.
	FailActivities bool
}

func NewMemory() *Memory {
	return &Memory{docs: map[docKey]doc{}, locks: map[docKey]*sync.Mutex{}}
}

var _ engine.Store = (*Memory)(nil)

func (m *Memory) Begin(ctx context.Context) (engine.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{store: m, staged: map[docKey]*doc{}, held: map[docKey]*sync.Mutex{}}, nil
}

func (m *Memory) lockFor(k docKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[k]
	if !ok {
		l = &sync.Mutex{}
		m.locks[k] = l
	}
	return l
}

func (m *Memory) AppendActivity(ctx context.Context, a domain.Activity) error {
	if m.FailActivities {
		return domain.Internal(nil, "activity sink unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Seq = int64(len(m.activities) + 1)
	m.activities = append(m.activities, a)
	return nil
}

func (m *Memory) Activities(ctx context.Context, kind domain.Kind, id string) ([]domain.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Activity{}
	for _, a := range m.activities {
		if a.EntityKind == kind && a.EntityID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) EnqueueIntents(ctx context.Context, intents []domain.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents = append(m.intents, intents...)
	return nil
}

// Intents returns every queued intent in order.
func (m *Memory) Intents() []domain.Intent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Intent(nil), m.intents...)
}

// AllActivities returns every audit record in append order.
func (m *Memory) AllActivities() []domain.Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Activity(nil), m.activities...)
}

type memTx struct {
	store *Memory
	// staged holds pending writes; a nil entry is a pending delete.
	staged map[docKey]*doc
	held   map[docKey]*sync.Mutex
	done   bool
}

func (t *memTx) Get(ctx context.Context, kind domain.Kind, id string, forUpdate bool) (domain.Entity, error) {
	k := docKey{kind, id}
	if forUpdate {
		if _, ok := t.held[k]; !ok {
			l := t.store.lockFor(k)
			l.Lock()
			t.held[k] = l
		}
	}
	d, ok := t.read(k)
	if !ok {
		return nil, domain.Errorf(domain.ErrKindNotFound, "%s %s not found", kind, id)
	}
	e, err := domain.Decode(kind, d.data)
	if err != nil {
		return nil, domain.Internal(err, "decode stored entity")
	}
	return e, nil
}

func (t *memTx) read(k docKey) (doc, bool) {
	if d, ok := t.staged[k]; ok {
		if d == nil {
			return doc{}, false
		}
		return *d, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	d, ok := t.store.docs[k]
	return d, ok
}

func (t *memTx) Find(ctx context.Context, q domain.Query) ([]domain.Entity, error) {
	want := map[string]json.RawMessage{}
	for field, v := range q.Where {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, domain.Internal(err, "encode query")
		}
		want[field] = raw
	}
	t.store.mu.RLock()
	keys := map[docKey]doc{}
	for k, d := range t.store.docs {
		if k.kind == q.Kind {
			keys[k] = d
		}
	}
	t.store.mu.RUnlock()
	for k, d := range t.staged {
		if k.kind != q.Kind {
			continue
		}
		if d == nil {
			delete(keys, k)
			continue
		}
		keys[k] = *d
	}

	type hit struct {
		seq int64
		e   domain.Entity
	}
	var hits []hit
	for k, d := range keys {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(d.data, &fields); err != nil {
			return nil, domain.Internal(err, "decode stored entity")
		}
		match := true
		for field, raw := range want {
			if !domain.SameJSON(fields[field], raw) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		e, err := domain.Decode(k.kind, d.data)
		if err != nil {
			return nil, domain.Internal(err, "decode stored entity")
		}
		hits = append(hits, hit{d.seq, e})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	out := make([]domain.Entity, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.e)
	}
	return out, nil
}

func (t *memTx) Insert(ctx context.Context, e domain.Entity) error {
	k := docKey{e.Kind(), e.Meta().ID}
	if _, ok := t.read(k); ok {
		return domain.Errorf(domain.ErrKindConflict, "%s %s already exists", k.kind, k.id)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return domain.Internal(err, "encode entity")
	}
	t.staged[k] = &doc{data: data, version: e.Meta().Version}
	return nil
}

func (t *memTx) Save(ctx context.Context, e domain.Entity, expected int64) error {
	k := docKey{e.Kind(), e.Meta().ID}
	d, ok := t.read(k)
	if !ok {
		return domain.Errorf(domain.ErrKindNotFound, "%s %s not found", k.kind, k.id)
	}
	if d.version != expected {
		return domain.Errorf(domain.ErrKindStaleState, "%s %s changed concurrently", k.kind, k.id)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return domain.Internal(err, "encode entity")
	}
	t.staged[k] = &doc{data: data, version: e.Meta().Version, seq: d.seq}
	return nil
}

func (t *memTx) Delete(ctx context.Context, kind domain.Kind, id string) error {
	k := docKey{kind, id}
	if _, ok := t.read(k); !ok {
		return domain.Errorf(domain.ErrKindNotFound, "%s %s not found", kind, id)
	}
	t.staged[k] = nil
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	for k, d := range t.staged {
		if d == nil {
			delete(t.store.docs, k)
			continue
		}
		if d.seq == 0 {
			t.store.seq++
			d.seq = t.store.seq
		}
		t.store.docs[k] = *d
	}
	t.store.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	t.done = true
	for k, l := range t.held {
		l.Unlock()
		delete(t.held, k)
	}
}
