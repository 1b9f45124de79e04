package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/flare-systems/flare-splunk/internal/config"
	"github.com/flare-systems/flare-splunk/internal/filters"
	"github.com/flare-systems/flare-splunk/internal/flare"
	"github.com/flare-systems/flare-splunk/internal/settings"
)

type configureFlags struct {
	APIKeyStdin   bool
	TenantIDs     []int
	Index         string
	FullEventData bool
	Severities    []string
	SourceTypes   []string
	PassAuth      string
	CreateIndex   bool
}

var configureOpts configureFlags

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Save the Flare configuration without the web wizard.",
	Long: "Save the Flare configuration without the web wizard.\n\n" +
		"The API key is read from stdin with --api-key-stdin, prompted for on a terminal,\n" +
		"or taken from the stored configuration. Omitting --severities or --source-types\n" +
		"selects every value.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigure(cmd)
	},
}

func runConfigure(cmd *cobra.Command) error {
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

	apiKey, err := resolveAPIKey(ctx, cmd, b.app.Store())
	if err != nil {
		return err
	}
	opts := flareOptions(cfg)
	opts.APIKey = apiKey
	client, err := flare.New(opts)
	if err != nil {
		return err
	}
	valid, err := client.ValidateAPIKey(ctx)
	if err != nil {
		return err
	}
	if !valid {
		return errors.New("invalid Flare API key")
	}

	var (
		tenants    []flare.Tenant
		severities []filters.Severity
		categories []filters.SourceTypeCategory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { tenants, err = client.Tenants(gctx); return err })
	g.Go(func() (err error) { severities, err = client.Severities(gctx); return err })
	g.Go(func() (err error) { categories, err = client.SourceTypeCategories(gctx); return err })
	if err := g.Wait(); err != nil {
		return err
	}

	if len(configureOpts.TenantIDs) == 0 {
		printTenants(cmd.OutOrStdout(), tenants)
		return usageError(errors.New("--tenant-ids is required"))
	}

	prefs, err := configureOpts.preferences(apiKey, b.app.Name(), severities, categories)
	if err != nil {
		return err
	}
	if configureOpts.CreateIndex {
		if err := b.app.CreateFlareIndex(ctx); err != nil {
			return err
		}
	}
	if err := b.app.SaveConfiguration(ctx, prefs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %d tenant(s), index %s\n", len(prefs.TenantIDs), prefs.IndexName)
	return nil
}

// preferences encodes the flag selection against the Flare taxonomy. An empty
// --index falls back to defaultIndex.
func (f configureFlags) preferences(apiKey, defaultIndex string, severities []filters.Severity, categories []filters.SourceTypeCategory) (settings.Preferences, error) {
	selectedSeverities := severities
	if len(f.Severities) > 0 {
		selectedSeverities = filters.SeveritiesByValue(f.Severities, severities)
	}
	severitiesFilter, err := filters.EncodeSeverities(selectedSeverities, severities)
	if err != nil {
		return settings.Preferences{}, fmt.Errorf("severities: %w", err)
	}

	selectedSourceTypes := filters.Leaves(categories)
	if len(f.SourceTypes) > 0 {
		selectedSourceTypes = filters.DecodeSourceTypes(strings.Join(f.SourceTypes, ","), categories)
	}
	sourceTypesFilter, err := filters.EncodeSourceTypes(selectedSourceTypes, categories)
	if err != nil {
		return settings.Preferences{}, fmt.Errorf("source types: %w", err)
	}

	index := f.Index
	if strings.TrimSpace(index) == "" {
		index = defaultIndex
	}
	prefs := settings.Preferences{
		APIKey:              apiKey,
		TenantIDs:           f.TenantIDs,
		IndexName:           index,
		IngestFullEventData: f.FullEventData,
		SeveritiesFilter:    severitiesFilter,
		SourceTypesFilter:   sourceTypesFilter,
		PassAuthUser:        f.PassAuth,
	}
	return prefs, prefs.Validate()
}

func resolveAPIKey(ctx context.Context, cmd *cobra.Command, store *settings.Store) (string, error) {
	if configureOpts.APIKeyStdin {
		return readStdinLine(cmd.InOrStdin())
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		cmd.Print("Flare API key (leave empty to keep the stored key): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		cmd.Println()
		if err != nil {
			return "", err
		}
		if key := strings.TrimSpace(string(raw)); key != "" {
			return key, nil
		}
	}
	key, err := store.APIKey(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", usageError(errors.New("no API key provided (use --api-key-stdin or run on a terminal)"))
	}
	return key, nil
}

func printTenants(w io.Writer, tenants []flare.Tenant) {
	fmt.Fprintln(w, "Available tenants:")
	for _, t := range tenants {
		fmt.Fprintf(w, "  %d\t%s\n", t.ID, t.Name)
	}
}

func init() {
	fs := configureCmd.Flags()
	fs.BoolVar(&configureOpts.APIKeyStdin, "api-key-stdin", false, "Read the Flare API key from stdin")
	fs.IntSliceVar(&configureOpts.TenantIDs, "tenant-ids", nil, "Tenant ids to ingest events from")
	fs.StringVar(&configureOpts.Index, "index", "", "Splunk index events are written to (default: the app name, as created by --create-index)")
	fs.BoolVar(&configureOpts.FullEventData, "full-event-data", false, "Ingest full event data instead of metadata only")
	fs.StringSliceVar(&configureOpts.Severities, "severities", nil, "Severity values to ingest (default all)")
	fs.StringSliceVar(&configureOpts.SourceTypes, "source-types", nil, "Source type or category values to ingest (default all)")
	fs.StringVar(&configureOpts.PassAuth, "pass-auth", "", "Splunk user whose session key is passed to the ingest input")
	fs.BoolVar(&configureOpts.CreateIndex, "create-index", false, "Create the Flare index on the first configuration")
}
