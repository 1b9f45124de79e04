package viewmodels

import "time"

type TenantStatus struct {
	TenantID  int        `json:"tenant_id"`
	StartDate *time.Time `json:"start_date,omitempty"`
	NextToken string     `json:"next_token,omitempty"`
}

// Status is the dashboard payload.
type Status struct {
	Version       string         `json:"version"`
	IndexName     string         `json:"index_name"`
	IsConfigured  bool           `json:"is_configured"`
	TenantIDs     []int          `json:"tenant_ids"`
	LastFetchedAt *time.Time     `json:"last_fetched_at,omitempty"`
	Tenants       []TenantStatus `json:"tenants"`
}

// IngestResult reports one manual ingest pass.
type IngestResult struct {
	Events  int                 `json:"events"`
	Tenants []TenantIngestCount `json:"tenants"`
	Toast   *ToastViewData      `json:"toast,omitempty"`
}

type TenantIngestCount struct {
	TenantID int `json:"tenant_id"`
	Events   int `json:"events"`
}
