package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openShared opens two journals on one database file, like two processes.
func openShared(t *testing.T) (*Journal, *Journal) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")

	open := func() *Journal {
		db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = db.Close() })
		return New(db, nil)
	}

	a := open()
	for _, stmt := range allSchema() {
		_, err := a.db.Exec(stmt)
		require.NoError(t, err)
	}
	return a, open()
}

func TestLease_ExclusiveAcrossConnections(t *testing.T) {
	a, b := openShared(t)
	ctx := context.Background()

	lease, err := a.Acquire(ctx, time.Minute)
	require.NoError(t, err)

	_, err = b.Acquire(ctx, time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, lease.Renew(ctx))
	require.NoError(t, lease.Release(ctx))

	other, err := b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))
}

func TestLease_ExpiredLeaseIsTakenOver(t *testing.T) {
	a, b := openShared(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return start }
	b.now = func() time.Time { return start.Add(2 * time.Minute) }

	stale, err := a.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Minute), stale.Expires())

	fresh, err := b.Acquire(ctx, time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Renew(ctx), ErrLeaseLost)
	require.NoError(t, stale.Release(ctx), "releasing a lost lease is a no-op")

	a.now = b.now
	_, err = a.Acquire(ctx, time.Minute)
	require.ErrorIs(t, err, ErrLeaseHeld, "the new owner keeps the lease")
	require.NoError(t, fresh.Release(ctx))
}

func TestLease_InvalidTTL(t *testing.T) {
	j, _ := newTestJournal(t)
	_, err := j.Acquire(context.Background(), 0)
	assert.Error(t, err)
}
