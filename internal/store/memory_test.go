package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclife/internal/domain"
)

func agreement(id, partner string, status domain.Status) *domain.Agreement {
	return &domain.Agreement{
		Base:          domain.Base{ID: id, Status: status, Version: 1},
		Partner:       partner,
		AgreementType: domain.AgreementPCA,
	}
}

func insert(t *testing.T, m *Memory, entities ...domain.Entity) {
	t.Helper()
	ctx := context.Background()
	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	for _, e := range entities {
		require.NoError(t, tx.Insert(ctx, e))
	}
	require.NoError(t, tx.Commit())
}

func TestMemoryInsertGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	insert(t, m, agreement("a1", "P1", domain.StatusDraft))

	tx, err := m.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	got, err := tx.Get(ctx, domain.KindAgreement, "a1", false)
	require.NoError(t, err)
	assert.Equal(t, "P1", got.(*domain.Agreement).Partner)

	_, err = tx.Get(ctx, domain.KindAgreement, "missing", false)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = tx.Insert(ctx, agreement("a1", "P2", domain.StatusDraft))
	assert.Equal(t, domain.ErrKindConflict, domain.KindOf(err))
}

func TestMemoryReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	insert(t, m, agreement("a1", "P1", domain.StatusDraft))

	tx, _ := m.Begin(ctx)
	got, err := tx.Get(ctx, domain.KindAgreement, "a1", false)
	require.NoError(t, err)
	got.(*domain.Agreement).Partner = "changed"
	again, err := tx.Get(ctx, domain.KindAgreement, "a1", false)
	require.NoError(t, err)
	assert.Equal(t, "P1", again.(*domain.Agreement).Partner)
	require.NoError(t, tx.Rollback())
}

func TestMemorySaveChecksVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	insert(t, m, agreement("a1", "P1", domain.StatusDraft))

	tx, _ := m.Begin(ctx)
	next := agreement("a1", "P1", domain.StatusSigned)
	next.Version = 2
	err := tx.Save(ctx, next, 5)
	assert.True(t, errors.Is(err, domain.ErrStaleState))
	require.NoError(t, tx.Save(ctx, next, 1))
	require.NoError(t, tx.Commit())

	tx, _ = m.Begin(ctx)
	defer tx.Rollback()
	got, err := tx.Get(ctx, domain.KindAgreement, "a1", false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSigned, got.Meta().Status)
	assert.Equal(t, int64(2), got.Meta().Version)
}

func TestMemoryRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tx, _ := m.Begin(ctx)
	require.NoError(t, tx.Insert(ctx, agreement("a1", "P1", domain.StatusDraft)))
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Commit(), "commit after rollback is a no-op")

	tx, _ = m.Begin(ctx)
	defer tx.Rollback()
	_, err := tx.Get(ctx, domain.KindAgreement, "a1", false)
	assert.Equal(t, domain.ErrKindNotFound, domain.KindOf(err))
}

func TestMemoryFind(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	insert(t, m,
		agreement("a1", "P1", domain.StatusSigned),
		agreement("a2", "P2", domain.StatusSigned),
	)
	insert(t, m, agreement("a3", "P1", domain.StatusDraft))

	tx, _ := m.Begin(ctx)
	defer tx.Rollback()
	require.NoError(t, tx.Delete(ctx, domain.KindAgreement, "a2"))
	require.NoError(t, tx.Insert(ctx, agreement("a4", "P1", domain.StatusSigned)))

	found, err := tx.Find(ctx, domain.Query{Kind: domain.KindAgreement, Where: map[string]any{"status": domain.StatusSigned}})
	require.NoError(t, err)
	var ids []string
	for _, e := range found {
		ids = append(ids, e.Meta().ID)
	}
	assert.ElementsMatch(t, []string{"a1", "a4"}, ids)

	found, err = tx.Find(ctx, domain.Query{Kind: domain.KindAgreement, Where: map[string]any{"partner": "P1", "status": "draft"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a3", found[0].Meta().ID)
}

func TestMemoryLockSerializesWriters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	insert(t, m, agreement("a1", "P1", domain.StatusDraft))

	first, _ := m.Begin(ctx)
	_, err := first.Get(ctx, domain.KindAgreement, "a1", true)
	require.NoError(t, err)

	acquired := make(chan domain.Status, 1)
	go func() {
		second, _ := m.Begin(ctx)
		defer second.Rollback()
		e, err := second.Get(ctx, domain.KindAgreement, "a1", true)
		if err != nil {
			acquired <- ""
			return
		}
		acquired <- e.Meta().Status
	}()

	select {
	case <-acquired:
		t.Fatalf("second writer got the lock while the first held it")
	case <-time.After(50 * time.Millisecond):
	}

	signed := agreement("a1", "P1", domain.StatusSigned)
	signed.Version = 2
	require.NoError(t, first.Save(ctx, signed, 1))
	require.NoError(t, first.Commit())

	select {
	case status := <-acquired:
		assert.Equal(t, domain.StatusSigned, status)
	case <-time.After(2 * time.Second):
		t.Fatalf("second writer never got the lock")
	}
}

func TestMemoryActivities(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.AppendActivity(ctx, domain.Activity{ID: "x1", EntityKind: domain.KindAgreement, EntityID: "a1"}))
	require.NoError(t, m.AppendActivity(ctx, domain.Activity{ID: "x2", EntityKind: domain.KindAgreement, EntityID: "a2"}))
	require.NoError(t, m.AppendActivity(ctx, domain.Activity{ID: "x3", EntityKind: domain.KindAgreement, EntityID: "a1"}))

	acts, err := m.Activities(ctx, domain.KindAgreement, "a1")
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "x1", acts[0].ID)
	assert.Equal(t, int64(3), acts[1].Seq)

	m.FailActivities = true
	assert.Error(t, m.AppendActivity(ctx, domain.Activity{ID: "x4"}))
}
