package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (r *countingRunner) Run(ctx context.Context) (Result, error) {
	r.calls.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	return Result{Events: 1}, r.err
}

func (r *countingRunner) RunOnce(ctx context.Context) error {
	_, err := r.Run(ctx)
	return err
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{err: ErrFetchedRecently}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		(&Scheduler{Runner: runner, Interval: time.Hour}).Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for runner.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler did not run at startup")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestSchedulerWithoutRunnerReturns(t *testing.T) {
	t.Parallel()

	(&Scheduler{Interval: time.Second}).Run(context.Background())
	(&Scheduler{Runner: &countingRunner{}}).Run(context.Background())
}

func TestTryLockRunnerRejectsConcurrentPass(t *testing.T) {
	t.Parallel()

	inner := &countingRunner{block: make(chan struct{})}
	runner := NewTryLockRunner(inner)

	errc := make(chan error, 1)
	go func() { errc <- runner.RunOnce(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for inner.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first pass did not start")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := runner.RunOnce(context.Background()); !errors.Is(err, ErrIngestAlreadyRunning) {
		t.Fatalf("RunOnce() error = %v, want ErrIngestAlreadyRunning", err)
	}
	close(inner.block)
	if err := <-errc; err != nil {
		t.Fatalf("first RunOnce() error = %v", err)
	}
	res, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() after release error = %v", err)
	}
	if res.Events != 1 {
		t.Fatalf("Run() events = %d, want 1", res.Events)
	}
}

func TestSkipped(t *testing.T) {
	t.Parallel()

	if !Skipped(ErrFetchedRecently) || !Skipped(ErrIngestAlreadyRunning) {
		t.Fatal("Skipped() = false for skip errors")
	}
	if Skipped(ErrAPIKeyNotFound) || Skipped(nil) {
		t.Fatal("Skipped() = true for a failure")
	}
}
