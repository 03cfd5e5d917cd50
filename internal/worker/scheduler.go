// Package worker runs journal uploads in the background.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/service"
	"github.com/Veraticus/pocket-ledger/internal/upload"
)

const passKey = "upload"

// Default sync settings.
const (
	DefaultInterval   = 15 * time.Minute
	DefaultTimeout    = time.Minute
	DefaultBackoffMin = time.Second
	DefaultBackoffMax = 5 * time.Minute
)

// ErrNoUploader is returned by NewScheduler without an uploader.
var ErrNoUploader = errors.New("scheduler needs an uploader")

// Scheduler runs upload passes periodically and on demand. Concurrent
// requests join the pass already in flight.
type Scheduler struct {
	uploader service.Uploader
	logger   *slog.Logger
	trigger  chan struct{}
	progress func(upload.Result)
	group    singleflight.Group
	opts     service.SyncOptions
	mu       sync.Mutex
	last     PassResult
}

// PassResult describes the most recent completed pass.
type PassResult struct {
	Finished time.Time
	Err      error
	Summary  upload.Summary
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithProgress receives every uploaded or discarded transaction.
func WithProgress(fn func(upload.Result)) Option {
	return func(s *Scheduler) { s.progress = fn }
}

// NewScheduler creates a scheduler. Zero option durations use the defaults.
func NewScheduler(uploader service.Uploader, opts service.SyncOptions, options ...Option) (*Scheduler, error) {
	if uploader == nil {
		return nil, ErrNoUploader
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = DefaultBackoffMin
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = max(DefaultBackoffMax, opts.BackoffMin)
	}

	s := &Scheduler{
		uploader: uploader,
		logger:   slog.Default(),
		trigger:  make(chan struct{}, 1),
		opts:     opts,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// RunOnce performs one upload pass bounded by the configured timeout. A call
// made while a pass is running waits for that pass and shares its result; the
// pass itself runs under the context of the caller that started it.
func (s *Scheduler) RunOnce(ctx context.Context) (upload.Summary, error) {
	ch := s.group.DoChan(passKey, func() (any, error) {
		passCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
		return s.pass(passCtx)
	})

	select {
	case <-ctx.Done():
		return upload.Summary{}, ctx.Err()
	case res := <-ch:
		sum, _ := res.Val.(upload.Summary)
		return sum, res.Err
	}
}

func (s *Scheduler) pass(ctx context.Context) (upload.Summary, error) {
	start := time.Now()
	sum, err := s.uploader.UploadAll(ctx, s.progress)

	s.mu.Lock()
	s.last = PassResult{Summary: sum, Err: err, Finished: time.Now()}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("sync pass failed",
			"applied", sum.Applied,
			"discarded", sum.Discarded,
			"error", err)
		return sum, err
	}
	if sum.Applied > 0 || sum.Discarded > 0 {
		s.logger.Info("sync pass complete",
			"applied", sum.Applied,
			"discarded", sum.Discarded,
			"remote_calls", sum.RemoteCalls,
			"duration", time.Since(start))
	}
	return sum, nil
}

// Trigger requests a pass from Run without blocking. Requests made while one
// is already queued are merged.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Last returns the result of the most recent pass.
func (s *Scheduler) Last() PassResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run performs passes on every tick and trigger until ctx is canceled. After
// a failed pass it retries with exponential backoff instead of waiting for
// the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	backoff := &common.Backoff{Min: s.opts.BackoffMin, Max: s.opts.BackoffMax, Multiplier: 2}
	var retry <-chan time.Time

	s.logger.Debug("sync scheduler started", "interval", s.opts.Interval, "timeout", s.opts.Timeout)

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := backoff.Next()
			s.logger.Debug("retrying sync", "delay", delay)
			retry = time.After(delay)
		} else {
			backoff.Reset()
			retry = nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
		case <-retry:
		}
	}
}
