package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pocket-ledger/internal/session"
)

func TestSessionLifecycle(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.LoadSession(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)

	first := session.Session{UserID: "u1", AccessToken: "t1", ExpiresAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.SaveSession(ctx, first))

	second := session.Session{UserID: "u2", AccessToken: "t2"}
	require.NoError(t, store.SaveSession(ctx, second))

	got, err := store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, *got)

	require.NoError(t, store.ClearSession(ctx))
	_, err = store.LoadSession(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)

	assert.ErrorIs(t, store.SaveSession(ctx, session.Session{AccessToken: "x"}), ErrEmptyString)
}

func TestSession_NotJournaled(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, session.Session{UserID: "u1", AccessToken: "t1"}))

	stats, err := store.Journal().Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingTransactions)
}
