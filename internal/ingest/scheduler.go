package ingest

import (
	"context"
	"log/slog"
	"time"
)

type Scheduler struct {
	Runner   Runner
	Interval time.Duration
}

func (s *Scheduler) Run(ctx context.Context) {
	if s.Runner == nil || s.Interval <= 0 {
		return
	}

	// Run immediately at startup.
	s.runOnce(ctx, "initial ingest")

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, "scheduled ingest")
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, name string) {
	err := s.Runner.RunOnce(ctx)
	switch {
	case err == nil:
	case Skipped(err):
		slog.Debug(name+" skipped", "reason", err)
	case ctx.Err() != nil:
	default:
		slog.Error(name+" failed", "err", err)
	}
}
