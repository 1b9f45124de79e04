package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/flare-systems/flare-splunk/internal/settings"
)

// Locations of the ingest bookkeeping in the data_store file.
const (
	FileDataStore    = "data_store"
	StanzaMetadata   = "metadata"
	StanzaNextTokens = "next_tokens"
	PropLastFetch    = "timestamp_last_fetch"
	startDatePrefix  = "start_date_"
	nextTokenPrefix  = "next_"
	timestampLayout  = time.RFC3339Nano
)

// StateStore keeps the ingestion cursors in the data_store configuration
// file so they survive restarts.
type StateStore struct {
	settings *settings.Store
}

// NewStateStore keeps ingest bookkeeping in the settings store.
func NewStateStore(s *settings.Store) *StateStore {
	return &StateStore{settings: s}
}

func startDateKey(tenantID int) string { return startDatePrefix + strconv.Itoa(tenantID) }
func nextTokenKey(tenantID int) string { return nextTokenPrefix + strconv.Itoa(tenantID) }

func (s *StateStore) fetch(ctx context.Context, stanza, prop string) (string, error) {
	value, err := s.settings.FetchConfigProperty(ctx, FileDataStore, stanza, prop, "")
	if errors.Is(err, settings.ErrNotFound) {
		return "", nil
	}
	return value, err
}

func (s *StateStore) fetchTime(ctx context.Context, stanza, prop string) (time.Time, bool, error) {
	raw, err := s.fetch(ctx, stanza, prop)
	if err != nil || raw == "" {
		return time.Time{}, false, err
	}
	t, err := time.Parse(timestampLayout, raw)
	if err != nil {
		// Unparseable values are treated as absent and overwritten later.
		return time.Time{}, false, nil
	}
	return t, true, nil
}

func (s *StateStore) set(ctx context.Context, stanza string, props map[string]string) error {
	if err := s.settings.UpsertConfigProperty(ctx, FileDataStore, stanza, props); err != nil {
		return fmt.Errorf("save ingestion state: %w", err)
	}
	return nil
}

// LastFetch returns when events were last fetched.
func (s *StateStore) LastFetch(ctx context.Context) (time.Time, bool, error) {
	return s.fetchTime(ctx, StanzaMetadata, PropLastFetch)
}

// SetLastFetch records when events were fetched.
func (s *StateStore) SetLastFetch(ctx context.Context, t time.Time) error {
	return s.set(ctx, StanzaMetadata, map[string]string{PropLastFetch: t.UTC().Format(timestampLayout)})
}

// StartDate returns the earliest day ingested for tenantID.
func (s *StateStore) StartDate(ctx context.Context, tenantID int) (time.Time, bool, error) {
	return s.fetchTime(ctx, StanzaMetadata, startDateKey(tenantID))
}

// SetStartDate records the earliest day ingested for tenantID.
func (s *StateStore) SetStartDate(ctx context.Context, tenantID int, t time.Time) error {
	return s.set(ctx, StanzaMetadata, map[string]string{startDateKey(tenantID): t.UTC().Format(timestampLayout)})
}

// Next returns the feed cursor of tenantID, or "".
func (s *StateStore) Next(ctx context.Context, tenantID int) (string, error) {
	return s.fetch(ctx, StanzaNextTokens, nextTokenKey(tenantID))
}

// SetNext saves the feed cursor of tenantID. An empty cursor is ignored so a
// finished feed resumes where it stopped.
func (s *StateStore) SetNext(ctx context.Context, tenantID int, next string) error {
	if next == "" {
		return nil
	}
	return s.set(ctx, StanzaNextTokens, map[string]string{nextTokenKey(tenantID): next})
}

// TenantState is the ingestion progress of one tenant.
type TenantState struct {
	TenantID  int        `json:"tenant_id"`
	StartDate *time.Time `json:"start_date,omitempty"`
	Next      string     `json:"next,omitempty"`
}

// Snapshot is the ingestion progress shown on the status dashboard.
type Snapshot struct {
	LastFetch *time.Time    `json:"last_fetched_at,omitempty"`
	Tenants   []TenantState `json:"tenants"`
}

// Snapshot reads the progress of tenantIDs.
func (s *StateStore) Snapshot(ctx context.Context, tenantIDs []int) (Snapshot, error) {
	var out Snapshot
	last, ok, err := s.LastFetch(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if ok {
		out.LastFetch = &last
	}
	out.Tenants = make([]TenantState, 0, len(tenantIDs))
	for _, id := range tenantIDs {
		state := TenantState{TenantID: id}
		start, ok, err := s.StartDate(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		if ok {
			state.StartDate = &start
		}
		if state.Next, err = s.Next(ctx, id); err != nil {
			return Snapshot{}, err
		}
		out.Tenants = append(out.Tenants, state)
	}
	return out, nil
}
