package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pocket-ledger/internal/service"
	"github.com/Veraticus/pocket-ledger/internal/upload"
)

type fakeUploader struct {
	block   chan struct{}
	errs    []error
	calls   atomic.Int32
	mu      sync.Mutex
	started chan struct{}
}

func (f *fakeUploader) UploadAll(ctx context.Context, progress func(upload.Result)) (upload.Summary, error) {
	n := f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return upload.Summary{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if int(n) <= len(f.errs) && f.errs[n-1] != nil {
		return upload.Summary{}, f.errs[n-1]
	}
	if progress != nil {
		progress(upload.Result{Status: upload.StatusApplied, TxID: int64(n)})
	}
	return upload.Summary{Applied: 1, RemoteCalls: 1}, nil
}

func fastOptions() service.SyncOptions {
	return service.SyncOptions{
		Interval:   time.Hour,
		Timeout:    time.Second,
		BackoffMin: time.Millisecond,
		BackoffMax: 5 * time.Millisecond,
	}
}

func TestNewScheduler(t *testing.T) {
	_, err := NewScheduler(nil, service.SyncOptions{})
	assert.ErrorIs(t, err, ErrNoUploader)

	s, err := NewScheduler(&fakeUploader{}, service.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.opts.Interval)
	assert.Equal(t, DefaultTimeout, s.opts.Timeout)
	assert.Equal(t, DefaultBackoffMin, s.opts.BackoffMin)
	assert.Equal(t, DefaultBackoffMax, s.opts.BackoffMax)
}

func TestRunOnce(t *testing.T) {
	up := &fakeUploader{}
	var seen []upload.Result
	s, err := NewScheduler(up, fastOptions(), WithProgress(func(r upload.Result) { seen = append(seen, r) }))
	require.NoError(t, err)

	sum, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Applied)
	assert.Len(t, seen, 1)
	assert.Equal(t, 1, s.Last().Summary.Applied)
	assert.False(t, s.Last().Finished.IsZero())
}

func TestRunOnce_ConcurrentCallersShareOnePass(t *testing.T) {
	up := &fakeUploader{block: make(chan struct{}), started: make(chan struct{}, 4)}
	s, err := NewScheduler(up, fastOptions())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]upload.Summary, 3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.RunOnce(context.Background())
	}()
	<-up.started

	for i := 1; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.RunOnce(context.Background())
		}(i)
	}

	// Give the joiners time to attach to the running pass.
	time.Sleep(50 * time.Millisecond)
	close(up.block)
	wg.Wait()

	assert.Equal(t, int32(1), up.calls.Load())
	for _, r := range results {
		assert.Equal(t, 1, r.Applied)
	}
}

func TestRunOnce_Timeout(t *testing.T) {
	up := &fakeUploader{block: make(chan struct{})}
	opts := fastOptions()
	opts.Timeout = 20 * time.Millisecond
	s, err := NewScheduler(up, opts)
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, s.Last().Err, context.DeadlineExceeded)
}

func TestRun_RetriesWithBackoffUntilSuccess(t *testing.T) {
	boom := errors.New("connection refused")
	up := &fakeUploader{errs: []error{boom, boom, boom}}
	s, err := NewScheduler(up, fastOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return up.calls.Load() >= 4
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return s.Last().Err == nil && s.Last().Summary.Applied == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_Trigger(t *testing.T) {
	up := &fakeUploader{}
	s, err := NewScheduler(up, fastOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return up.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.Trigger()
	require.Eventually(t, func() bool { return up.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestTrigger_DoesNotBlock(t *testing.T) {
	s, err := NewScheduler(&fakeUploader{}, fastOptions())
	require.NoError(t, err)

	s.Trigger()
	s.Trigger()
	s.Trigger()
	assert.Len(t, s.trigger, 1)
}
