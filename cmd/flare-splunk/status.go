package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/flare-systems/flare-splunk/internal/config"
	"github.com/flare-systems/flare-splunk/internal/ingest"
)

type statusReport struct {
	Version      string          `json:"version"`
	IndexName    string          `json:"index_name"`
	IsConfigured bool            `json:"is_configured"`
	TenantIDs    []int           `json:"tenant_ids"`
	Ingest       ingest.Snapshot `json:"ingest"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the configuration and ingest state as JSON.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		b, err := openBackends(ctx, cfg, "")
		if err != nil {
			return err
		}
		defer b.Close()

		report, err := buildStatusReport(ctx, b)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func buildStatusReport(ctx context.Context, b *backends) (statusReport, error) {
	app := b.app
	version, err := app.VersionName(ctx, "unknown")
	if err != nil {
		return statusReport{}, err
	}
	first, err := app.IsFirstConfiguration(ctx)
	if err != nil {
		return statusReport{}, err
	}
	indexName, err := app.CurrentIndexName(ctx)
	if err != nil {
		return statusReport{}, err
	}
	tenantIDs, err := app.Store().TenantIDs(ctx)
	if err != nil {
		return statusReport{}, err
	}
	snapshot, err := ingest.NewStateStore(app.Store()).Snapshot(ctx, tenantIDs)
	if err != nil {
		return statusReport{}, err
	}
	return statusReport{
		Version:      version,
		IndexName:    indexName,
		IsConfigured: !first,
		TenantIDs:    tenantIDs,
		Ingest:       snapshot,
	}, nil
}
