package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/flare-systems/flare-splunk/internal/filters"
	"github.com/flare-systems/flare-splunk/internal/flare"
	"github.com/flare-systems/flare-splunk/internal/metrics"
	"github.com/flare-systems/flare-splunk/internal/settings"
)

const (
	// MinFetchInterval keeps overlapping passes from fetching the same
	// events.
	MinFetchInterval = 10 * time.Minute
	// InitialLookback bounds how far back the first pass of a tenant reads.
	InitialLookback = 30 * 24 * time.Hour
)

// Feed streams the events of one tenant.
type Feed interface {
	Events(ctx context.Context, q flare.FeedQuery) iter.Seq2[flare.FeedEvent, error]
}

// FeedFactory returns the feed of tenantID authenticated with apiKey.
type FeedFactory func(apiKey string, tenantID int) (Feed, error)

// NewFlareFeedFactory returns a FeedFactory backed by the Flare API at
// opts.BaseURL. APIKey and TenantID of opts are overridden per tenant.
func NewFlareFeedFactory(opts flare.Options) FeedFactory {
	return func(apiKey string, tenantID int) (Feed, error) {
		o := opts
		o.APIKey = apiKey
		o.TenantID = tenantID
		return flare.New(o)
	}
}

// Ingester writes the feed of every configured tenant to Out as one JSON
// object per line.
type Ingester struct {
	Settings *settings.Store
	State    *StateStore
	NewFeed  FeedFactory
	Out      io.Writer
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result counts the events written by one pass.
type Result struct {
	Events   int
	ByTenant map[int]int
}

// RunOnce performs one pass and drops the counts.
func (in *Ingester) RunOnce(ctx context.Context) error {
	_, err := in.Run(ctx)
	return err
}

// Run performs one pass. A tenant failure is logged and the remaining tenants
// are still ingested. The returned error joins every tenant failure.
func (in *Ingester) Run(ctx context.Context) (res Result, err error) {
	started := time.Now()
	defer func() {
		if !Skipped(err) {
			metrics.ObserveIngestRun(started, err)
		}
	}()

	if in.Settings == nil || in.State == nil || in.NewFeed == nil || in.Out == nil {
		return Result{}, errors.New("ingester is not configured")
	}
	logger := in.logger()

	if !forcedIngest(ctx) {
		last, ok, err := in.State.LastFetch(ctx)
		if err != nil {
			return Result{}, err
		}
		if ok && in.now().Sub(last) < MinFetchInterval {
			logger.Info("events were fetched recently, exiting", "last_fetch", last, "min_interval", MinFetchInterval)
			return Result{}, ErrFetchedRecently
		}
	}

	apiKey, err := in.Settings.APIKey(ctx)
	if err != nil {
		return Result{}, err
	}
	if apiKey == "" {
		return Result{}, ErrAPIKeyNotFound
	}
	tenantIDs, err := in.Settings.TenantIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(tenantIDs) == 0 {
		return Result{}, ErrTenantIDsNotFound
	}
	query, err := in.baseQuery(ctx)
	if err != nil {
		return Result{}, err
	}

	if err := in.State.SetLastFetch(ctx, in.now()); err != nil {
		return Result{}, err
	}

	res.ByTenant = make(map[int]int, len(tenantIDs))
	var errs []error
	for _, tenantID := range tenantIDs {
		count, err := in.ingestTenant(ctx, apiKey, tenantID, query)
		res.ByTenant[tenantID] = count
		res.Events += count
		logger.Info("fetched tenant events", "tenant_id", tenantID, "events", count)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Error("tenant ingest failed", "tenant_id", tenantID, "err", err)
			errs = append(errs, fmt.Errorf("tenant %d: %w", tenantID, err))
		}
	}
	logger.Info("fetched events across all tenants", "events", res.Events, "tenants", len(tenantIDs))
	return res, errors.Join(errs...)
}

func (in *Ingester) baseQuery(ctx context.Context) (flare.FeedQuery, error) {
	fullEventData, err := in.Settings.IngestFullEventData(ctx)
	if err != nil {
		return flare.FeedQuery{}, err
	}
	severities, err := in.Settings.SeveritiesFilter(ctx)
	if err != nil {
		return flare.FeedQuery{}, err
	}
	sourceTypes, err := in.Settings.SourceTypesFilter(ctx)
	if err != nil {
		return flare.FeedQuery{}, err
	}
	return flare.FeedQuery{
		Severities:    filters.Tokens(severities),
		SourceTypes:   filters.Tokens(sourceTypes),
		FullEventData: fullEventData,
	}, nil
}

func (in *Ingester) ingestTenant(ctx context.Context, apiKey string, tenantID int, q flare.FeedQuery) (int, error) {
	startDate, ok, err := in.State.StartDate(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if !ok {
		startDate = in.now().Add(-InitialLookback)
		if err := in.State.SetStartDate(ctx, tenantID, startDate); err != nil {
			return 0, err
		}
	}
	next, err := in.State.Next(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	feed, err := in.NewFeed(apiKey, tenantID)
	if err != nil {
		return 0, err
	}
	q.From = next
	q.StartDate = startDate
	in.logger().Info("fetching tenant feed", "tenant_id", tenantID, "next", next, "start_date", startDate)

	enc := json.NewEncoder(in.Out)
	tenantLabel := strconv.Itoa(tenantID)
	count := 0
	for ev, err := range feed.Events(ctx, q) {
		if err != nil {
			return count, err
		}
		if err := in.State.SetLastFetch(ctx, in.now()); err != nil {
			return count, err
		}
		if err := in.State.SetNext(ctx, tenantID, ev.Next); err != nil {
			return count, err
		}
		if ev.Event == nil {
			ev.Event = flare.Event{}
		}
		ev.Event["tenant_id"] = tenantID
		if err := enc.Encode(ev.Event); err != nil {
			return count, fmt.Errorf("write event: %w", err)
		}
		count++
		metrics.IngestEventsTotal.WithLabelValues(tenantLabel).Inc()
	}
	return count, nil
}

func (in *Ingester) now() time.Time {
	if in.Now != nil {
		return in.Now().UTC()
	}
	return time.Now().UTC()
}

func (in *Ingester) logger() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}
