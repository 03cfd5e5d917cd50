// Package service defines the contracts shared between the sync components.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/pocket-ledger/internal/upload"
)

// Uploader drains the local journal into the remote store.
type Uploader interface {
	UploadAll(ctx context.Context, progress func(upload.Result)) (upload.Summary, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// SyncOptions configures the background sync loop.
type SyncOptions struct {
	Interval   time.Duration
	Timeout    time.Duration
	BackoffMin time.Duration
	BackoffMax time.Duration
}
