package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLeaseHeld is returned when another process is draining the journal.
	ErrLeaseHeld = errors.New("journal is being uploaded by another process")
	// ErrLeaseLost is returned when a lease expired and was taken over.
	ErrLeaseLost = errors.New("journal upload lease lost")
)

// Lease is an exclusive, expiring claim on draining the journal. It is shared
// by every process using the same database file.
type Lease struct {
	j       *Journal
	owner   string
	ttl     time.Duration
	expires time.Time
}

// Acquire claims the journal for ttl. It fails with ErrLeaseHeld while an
// unexpired lease belongs to someone else.
func (j *Journal) Acquire(ctx context.Context, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lease ttl must be positive, got %s", ttl)
	}

	now := j.now()
	l := &Lease{j: j, owner: uuid.NewString(), ttl: ttl, expires: now.Add(ttl)}

	// A single statement takes SQLite's write lock, so the check and the
	// claim cannot interleave with another process.
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_lock (id, owner, expires_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE sync_lock.expires_at <= ?`,
		l.owner, l.expires.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire upload lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check upload lease: %w", err)
	}
	if n == 0 {
		return nil, ErrLeaseHeld
	}

	j.logger.Debug("acquired upload lease", "owner", l.owner, "expires", l.expires)
	return l, nil
}

// Renew extends the lease by its ttl from now.
func (l *Lease) Renew(ctx context.Context) error {
	expires := l.j.now().Add(l.ttl)
	res, err := l.j.db.ExecContext(ctx,
		`UPDATE sync_lock SET expires_at = ? WHERE id = 1 AND owner = ?`,
		expires.UnixNano(), l.owner)
	if err != nil {
		return fmt.Errorf("failed to renew upload lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check upload lease: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	l.expires = expires
	return nil
}

// Release gives the lease up. Releasing a lease that was taken over is a
// no-op.
func (l *Lease) Release(ctx context.Context) error {
	if _, err := l.j.db.ExecContext(ctx,
		`DELETE FROM sync_lock WHERE id = 1 AND owner = ?`, l.owner); err != nil {
		return fmt.Errorf("failed to release upload lease: %w", err)
	}
	return nil
}

// Expires reports when the lease runs out unless renewed.
func (l *Lease) Expires() time.Time {
	return l.expires
}
