package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/pgxstore"
	"github.com/alexedwards/scs/v2"
	"github.com/spf13/cobra"

	"github.com/flare-systems/flare-splunk/internal/config"
	httpapp "github.com/flare-systems/flare-splunk/internal/http"
	"github.com/flare-systems/flare-splunk/internal/http/handlers"
	"github.com/flare-systems/flare-splunk/internal/ingest"
	"github.com/flare-systems/flare-splunk/internal/metrics"
)

const sessionLifetime = 12 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the setup wizard API and the background ingest loop.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer b.Close()

	sessions := scs.New()
	sessions.Lifetime = sessionLifetime
	sessions.Cookie.Name = "flare_session"
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteLaxMode
	sessions.Cookie.Secure = cfg.AuthCookieSecure
	if b.pool != nil {
		sessions.Store = pgxstore.New(b.pool)
	}

	state := ingest.NewStateStore(b.app.Store())
	runner := ingest.NewTryLockRunner(&ingest.Ingester{
		Settings: b.app.Store(),
		State:    state,
		NewFeed:  ingest.NewFlareFeedFactory(flareOptions(cfg)),
		Out:      os.Stdout,
		Logger:   slog.Default().With("component", "ingest"),
	})
	scheduler := ingest.Scheduler{Runner: runner, Interval: cfg.IngestInterval}
	go scheduler.Run(ctx)

	_, metricsErrCh := metrics.StartServer(ctx, cfg.MetricsAddr)

	srv, err := httpapp.NewEchoServer(&handlers.Handlers{
		App:      b.app,
		State:    state,
		Accounts: handlers.NewFlareAccountFactory(flareOptions(cfg)),
		Sessions: sessions,
		Ingest:   runner,
	})
	if err != nil {
		return err
	}
	httpServer := srv.NewServer(cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.HTTPAddr, "credential_backend", cfg.CredentialBackend, "config_backend", cfg.ConfigBackend)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-metricsErrCh:
		return err
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
