// Package upload drains the local journal into the remote store, one journal
// transaction at a time.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/pocket-ledger/internal/journal"
	"github.com/Veraticus/pocket-ledger/internal/remote"
)

// Status describes the outcome of a single UploadNext call.
type Status int

// Upload outcomes.
const (
	StatusEmpty Status = iota
	StatusApplied
	StatusDiscarded
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusApplied:
		return "applied"
	case StatusDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result reports what happened to one journal transaction.
type Result struct {
	Err     error
	Status  Status
	TxID    int64
	Entries int
	Calls   int
}

// Summary totals an UploadAll run.
type Summary struct {
	Applied     int
	Discarded   int
	RemoteCalls int
}

// DefaultLeaseTTL is how long a drain holds the journal between renewals.
const DefaultLeaseTTL = 2 * time.Minute

// Queue is the part of the journal the connector consumes.
type Queue interface {
	Acquire(ctx context.Context, ttl time.Duration) (*journal.Lease, error)
	NextBatch(ctx context.Context) (*journal.Transaction, error)
	Complete(ctx context.Context, txID int64) error
	Discard(ctx context.Context, txID int64, code, message string) error
}

// Connector uploads journal transactions through a remote backend.
type Connector struct {
	queue    Queue
	backend  remote.Backend
	logger   *slog.Logger
	leaseTTL time.Duration
	mu       sync.Mutex
}

// Option configures a Connector.
type Option func(*Connector)

// WithLeaseTTL sets how long the connector claims the journal per
// transaction. Remote calls are cut off when the claim runs out.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(c *Connector) {
		if ttl > 0 {
			c.leaseTTL = ttl
		}
	}
}

// NewConnector creates a connector. A nil logger uses slog.Default.
func NewConnector(queue Queue, backend remote.Backend, logger *slog.Logger, opts ...Option) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{queue: queue, backend: backend, logger: logger, leaseTTL: DefaultLeaseTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadNext uploads the oldest pending journal transaction.
//
// A transaction the remote rejects as fatal is moved to the dead letters and
// reported as StatusDiscarded with a nil error. Any other failure leaves the
// transaction pending and is returned. While another process holds the
// journal lease the call fails with journal.ErrLeaseHeld.
func (c *Connector) UploadNext(ctx context.Context) (Result, error) {
	if ctx == nil {
		return Result{}, errors.New("context cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	lease, err := c.acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	defer c.release(ctx, lease)
	return c.uploadLeased(ctx, lease)
}

// UploadAll drains the journal in order until it is empty or an upload fails
// with a retryable error. progress, when non-nil, receives every non-empty
// result. The journal lease is held for the whole drain.
func (c *Connector) UploadAll(ctx context.Context, progress func(Result)) (Summary, error) {
	if ctx == nil {
		return Summary{}, errors.New("context cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var sum Summary
	lease, err := c.acquire(ctx)
	if err != nil {
		return sum, err
	}
	defer c.release(ctx, lease)

	for {
		res, err := c.uploadLeased(ctx, lease)
		sum.RemoteCalls += res.Calls
		if err != nil {
			return sum, err
		}

		switch res.Status {
		case StatusEmpty:
			return sum, nil
		case StatusApplied:
			sum.Applied++
		case StatusDiscarded:
			sum.Discarded++
		}
		if progress != nil {
			progress(res)
		}
	}
}

func (c *Connector) acquire(ctx context.Context) (*journal.Lease, error) {
	lease, err := c.queue.Acquire(ctx, c.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim journal: %w", err)
	}
	return lease, nil
}

func (c *Connector) release(ctx context.Context, lease *journal.Lease) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("failed to release upload lease", "error", err)
	}
}

// uploadLeased renews the lease and uploads one transaction before it
// expires.
func (c *Connector) uploadLeased(ctx context.Context, lease *journal.Lease) (Result, error) {
	if err := lease.Renew(ctx); err != nil {
		return Result{}, fmt.Errorf("failed to claim journal: %w", err)
	}
	ctx, cancel := context.WithDeadline(ctx, lease.Expires())
	defer cancel()
	return c.uploadNext(ctx)
}

func (c *Connector) uploadNext(ctx context.Context) (Result, error) {
	tx, err := c.queue.NextBatch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read journal: %w", err)
	}
	if tx == nil {
		return Result{Status: StatusEmpty}, nil
	}

	res := Result{TxID: tx.ID, Entries: len(tx.Entries)}

	plan, err := BuildPlan(tx)
	if err != nil {
		return c.discard(ctx, res, &remote.Error{Code: remote.CodeInvalidParameter, Message: err.Error()})
	}

	res.Calls = plan.Calls()
	if err := c.execute(ctx, plan); err != nil {
		if IsFatalError(err) {
			return c.discard(ctx, res, err)
		}
		c.logger.Warn("upload failed, will retry",
			"tx_id", tx.ID,
			"error", err)
		res.Err = err
		return res, fmt.Errorf("failed to upload transaction %d: %w", tx.ID, err)
	}

	if err := c.queue.Complete(ctx, tx.ID); err != nil {
		return res, fmt.Errorf("failed to complete transaction %d: %w", tx.ID, err)
	}

	c.logger.Debug("uploaded transaction",
		"tx_id", tx.ID,
		"entries", len(tx.Entries),
		"calls", res.Calls)
	res.Status = StatusApplied
	return res, nil
}

func (c *Connector) discard(ctx context.Context, res Result, cause error) (Result, error) {
	code := remote.CodeOf(cause)
	c.logger.Error("remote rejected transaction, moving to dead letters",
		"tx_id", res.TxID,
		"code", code,
		"error", cause)

	if err := c.queue.Discard(ctx, res.TxID, code, cause.Error()); err != nil {
		return res, fmt.Errorf("failed to discard transaction %d: %w", res.TxID, err)
	}
	res.Status = StatusDiscarded
	res.Err = cause
	return res, nil
}

func (c *Connector) execute(ctx context.Context, plan Plan) error {
	if plan.Empty() {
		return nil
	}
	if txb, ok := c.backend.(remote.Transactional); ok {
		return txb.InTx(ctx, func(b remote.Backend) error {
			return run(ctx, b, plan)
		})
	}
	return run(ctx, c.backend, plan)
}

func run(ctx context.Context, b remote.Backend, plan Plan) error {
	if len(plan.Batch) > 0 {
		if err := b.ApplyBatch(ctx, plan.Batch); err != nil {
			return err
		}
	}

	for _, call := range plan.Transfers {
		var err error
		switch call.Kind {
		case CallCreateTransfer:
			err = b.CreateTransfer(ctx, call.Payload)
		case CallEditTransfer:
			err = b.EditTransfer(ctx, call.Payload)
		case CallRevertTransfer:
			err = b.RevertTransfer(ctx, call.Payload.ID)
		default:
			err = fmt.Errorf("unknown call kind %q", call.Kind)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", call.Kind, call.Payload.ID, err)
		}
	}
	return nil
}
