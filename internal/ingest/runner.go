package ingest

import (
	"context"
	"errors"
	"sync"
)

// Runner executes a single ingest pass.
type Runner interface {
	RunOnce(context.Context) error
}

// ErrFetchedRecently is returned when the previous pass finished less than
// MinFetchInterval ago.
var ErrFetchedRecently = errors.New("events were fetched recently")

// ErrAPIKeyNotFound is returned when no Flare API key is stored.
var ErrAPIKeyNotFound = errors.New("flare API key is not configured")

// ErrTenantIDsNotFound is returned when no tenant is selected.
var ErrTenantIDsNotFound = errors.New("no flare tenant is configured")

// ErrIngestAlreadyRunning is returned by a try-lock runner when another pass
// is already in progress.
var ErrIngestAlreadyRunning = errors.New("ingest is already running")

// Skipped reports whether err means the pass had nothing to do rather than
// having failed.
func Skipped(err error) bool {
	return errors.Is(err, ErrFetchedRecently) || errors.Is(err, ErrIngestAlreadyRunning)
}

// Pass is a Runner that reports what it wrote.
type Pass interface {
	Run(context.Context) (Result, error)
}

// TryLockRunner serializes passes within the process.
type TryLockRunner struct {
	mu    sync.Mutex
	inner Pass
}

// NewTryLockRunner wraps inner. A pass started while another is running
// returns ErrIngestAlreadyRunning.
func NewTryLockRunner(inner Pass) *TryLockRunner {
	return &TryLockRunner{inner: inner}
}

func (r *TryLockRunner) Run(ctx context.Context) (Result, error) {
	if r == nil || r.inner == nil {
		return Result{}, errors.New("ingest runner is not configured")
	}
	if !r.mu.TryLock() {
		return Result{}, ErrIngestAlreadyRunning
	}
	defer r.mu.Unlock()
	return r.inner.Run(ctx)
}

func (r *TryLockRunner) RunOnce(ctx context.Context) error {
	_, err := r.Run(ctx)
	return err
}

type runContextKey int

const runContextKeyForce runContextKey = iota

// WithForcedIngest marks ctx so the pass ignores MinFetchInterval.
func WithForcedIngest(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runContextKeyForce, true)
}

func forcedIngest(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	forced, _ := ctx.Value(runContextKeyForce).(bool)
	return forced
}
