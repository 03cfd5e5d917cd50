// Package postgres implements the remote store on PostgreSQL. Every call is a
// server-side procedure so each one is atomic on its own.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/remote"
	"github.com/Veraticus/pocket-ledger/internal/service"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the server schema: tables plus the four procedures.
func Schema() string {
	return schemaSQL
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Backend talks to the remote store through a pgx pool.
type Backend struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{pool: pool, logger: logger.With("component", "postgres")}
}

// Connect opens a pool and waits for the server to answer.
func Connect(ctx context.Context, databaseURL string, logger *slog.Logger) (*Backend, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	err = common.WithRetry(ctx, func() error {
		err := pool.Ping(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Server-side rejections are permanent.
			return &common.RetryableError{Err: err, Retryable: false}
		}
		return err
	}, service.RetryOptions{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(pool, logger), nil
}

// Close closes the pool.
func (b *Backend) Close() {
	b.pool.Close()
}

// Migrate installs or refreshes the server schema.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to install remote schema: %w", translate(err))
	}
	b.logger.Info("installed remote schema")
	return nil
}

// ApplyBatch implements remote.Backend.
func (b *Backend) ApplyBatch(ctx context.Context, ops []remote.Operation) error {
	return applyBatch(ctx, b.pool, ops)
}

// CreateTransfer implements remote.Backend.
func (b *Backend) CreateTransfer(ctx context.Context, p remote.TransferPayload) error {
	return callTransfer(ctx, b.pool, remote.ProcCreateTransfer, p)
}

// EditTransfer implements remote.Backend.
func (b *Backend) EditTransfer(ctx context.Context, p remote.TransferPayload) error {
	return callTransfer(ctx, b.pool, remote.ProcEditTransfer, p)
}

// RevertTransfer implements remote.Backend.
func (b *Backend) RevertTransfer(ctx context.Context, id string) error {
	return revertTransfer(ctx, b.pool, id)
}

// InTx runs fn inside one database transaction.
func (b *Backend) InTx(ctx context.Context, fn func(remote.Backend) error) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		return fn(&txBackend{tx: tx})
	})
}

// Balance returns an account balance, for tests and diagnostics.
func (b *Backend) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := b.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		return 0, translate(err)
	}
	return balance, nil
}

type txBackend struct {
	tx pgx.Tx
}

func (t *txBackend) ApplyBatch(ctx context.Context, ops []remote.Operation) error {
	return applyBatch(ctx, t.tx, ops)
}

func (t *txBackend) CreateTransfer(ctx context.Context, p remote.TransferPayload) error {
	return callTransfer(ctx, t.tx, remote.ProcCreateTransfer, p)
}

func (t *txBackend) EditTransfer(ctx context.Context, p remote.TransferPayload) error {
	return callTransfer(ctx, t.tx, remote.ProcEditTransfer, p)
}

func (t *txBackend) RevertTransfer(ctx context.Context, id string) error {
	return revertTransfer(ctx, t.tx, id)
}

func applyBatch(ctx context.Context, q querier, ops []remote.Operation) error {
	payload, err := json.Marshal(ops)
	if err != nil {
		return &remote.Error{Code: remote.CodeInvalidParameter, Message: "failed to encode batch", Details: err.Error()}
	}
	if _, err := q.Exec(ctx, `SELECT apply_batch($1::jsonb)`, string(payload)); err != nil {
		return translate(err)
	}
	return nil
}

func callTransfer(ctx context.Context, q querier, proc string, p remote.TransferPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`SELECT %s($1, $2, $3, $4, $5, $6, $7)`, pgx.Identifier{proc}.Sanitize())
	if _, err := q.Exec(ctx, query,
		p.ID, p.SourceID, p.SourceAmount, p.DestinationID, p.DestinationAmount, p.Memo, p.Time,
	); err != nil {
		return translate(err)
	}
	return nil
}

func revertTransfer(ctx context.Context, q querier, id string) error {
	if id == "" {
		return &remote.Error{Code: remote.CodeInvalidParameter, Message: "transfer id is required"}
	}
	if _, err := q.Exec(ctx, `SELECT revert_transfer($1)`, id); err != nil {
		return translate(err)
	}
	return nil
}

// translate turns server rejections into remote.Error. Everything else, such
// as connection failures, is returned unchanged and treated as transient.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &remote.Error{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
		}
	}
	return err
}
