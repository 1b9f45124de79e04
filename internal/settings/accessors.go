package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Credential keys.
const (
	KeyAPIKey              = "api_key"
	KeyTenantID            = "tenant_id"
	KeyTenantIDs           = "tenant_ids"
	KeyIngestMetadataOnly  = "ingest_metadata_only"
	KeyIngestFullEventData = "ingest_full_event_data"
	KeySeveritiesFilter    = "severities_filter"
	KeySourceTypesFilter   = "source_types_filter"
)

// APIKey returns the stored Flare API key, or "".
func (s *Store) APIKey(ctx context.Context) (string, error) {
	return s.FetchCredential(ctx, KeyAPIKey, "")
}

// TenantID returns the single stored tenant id, or -1.
func (s *Store) TenantID(ctx context.Context) (int, error) {
	raw, err := s.FetchCredential(ctx, KeyTenantID, "")
	if err != nil {
		return -1, err
	}
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return -1, nil
	}
	return id, nil
}

// TenantIDs returns the stored tenant ids. Installations configured before
// multi-tenant support only have tenant_id, which is used as a fallback.
func (s *Store) TenantIDs(ctx context.Context) ([]int, error) {
	raw, err := s.FetchCredential(ctx, KeyTenantIDs, "")
	if err != nil {
		return nil, err
	}
	if raw != "" {
		var ids []int
		if err := json.Unmarshal([]byte(raw), &ids); err == nil && len(ids) > 0 {
			return ids, nil
		}
	}

	legacy, err := s.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if legacy < 0 {
		return []int{}, nil
	}
	return []int{legacy}, nil
}

// IngestFullEventData reports whether full event data is ingested, false when
// unset.
func (s *Store) IngestFullEventData(ctx context.Context) (bool, error) {
	return s.fetchBool(ctx, KeyIngestFullEventData)
}

// IngestMetadataOnly reports the legacy metadata-only flag, false when unset.
func (s *Store) IngestMetadataOnly(ctx context.Context) (bool, error) {
	return s.fetchBool(ctx, KeyIngestMetadataOnly)
}

// SeveritiesFilter returns the persisted severity filter string.
func (s *Store) SeveritiesFilter(ctx context.Context) (string, error) {
	return s.FetchCredential(ctx, KeySeveritiesFilter, "")
}

// SourceTypesFilter returns the persisted source type filter string.
func (s *Store) SourceTypesFilter(ctx context.Context) (string, error) {
	return s.FetchCredential(ctx, KeySourceTypesFilter, "")
}

func (s *Store) fetchBool(ctx context.Context, key string) (bool, error) {
	raw, err := s.FetchCredential(ctx, key, "false")
	if err != nil {
		return false, err
	}
	return raw == "true", nil
}

func encodeTenantIDs(ids []int) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
