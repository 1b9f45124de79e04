package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flare-systems/flare-splunk/internal/config"
	"github.com/flare-systems/flare-splunk/internal/flare"
	"github.com/flare-systems/flare-splunk/internal/pgstore"
	"github.com/flare-systems/flare-splunk/internal/secrets/vault"
	"github.com/flare-systems/flare-splunk/internal/settings"
	"github.com/flare-systems/flare-splunk/internal/splunk"
)

// backends holds the collaborators every command builds from config.
type backends struct {
	splunk *splunk.Client
	app    *settings.App
	// pool is set when the config store is Postgres.
	pool *pgxpool.Pool
}

// openBackends connects the settings app to the configured credential and
// config backends. A non-empty sessionKey replaces the configured splunkd
// token.
func openBackends(ctx context.Context, cfg config.Config, sessionKey string) (*backends, error) {
	splunkOpts := splunk.Options{
		BaseURL:            cfg.Splunk.URL,
		Token:              cfg.Splunk.Token,
		AuthScheme:         cfg.Splunk.AuthScheme,
		App:                cfg.Splunk.App,
		InsecureSkipVerify: cfg.Splunk.InsecureSkipVerify,
		Timeout:            cfg.Splunk.Timeout,
	}
	if sessionKey = strings.TrimSpace(sessionKey); sessionKey != "" {
		splunkOpts.Token = sessionKey
		splunkOpts.AuthScheme = splunk.AuthSchemeSplunk
	}
	sc, err := splunk.New(splunkOpts)
	if err != nil {
		return nil, fmt.Errorf("splunk client: %w", err)
	}
	b := &backends{splunk: sc}

	var credentials settings.Vault = sc
	if cfg.CredentialBackend == config.BackendVault {
		caCert, err := cfg.VaultCACertPEM()
		if err != nil {
			return nil, err
		}
		vc, err := vault.New(vault.Options{
			Address:          cfg.Vault.Address,
			Namespace:        cfg.Vault.Namespace,
			AuthType:         cfg.Vault.AuthType,
			Token:            cfg.Vault.Token,
			AppRoleMountPath: cfg.Vault.AppRoleMountPath,
			AppRoleRoleID:    cfg.Vault.AppRoleRoleID,
			AppRoleSecretID:  cfg.Vault.AppRoleSecretID,
			TLSSkipVerify:    cfg.Vault.TLSSkipVerify,
			TLSCACertPEM:     caCert,
			Mount:            cfg.Vault.Mount,
			PathPrefix:       cfg.Vault.PathPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("vault client: %w", err)
		}
		credentials = vc
	}

	var configStore settings.ConfigStore = sc
	if cfg.ConfigBackend == config.BackendPostgres {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		b.pool = pool
		configStore = pgstore.New(pool)
	}

	store, err := settings.NewStore(credentials, configStore, cfg.CredentialRealm)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.app, err = settings.NewApp(store, sc, cfg.Splunk.App)
	if err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) Close() {
	if b != nil && b.pool != nil {
		b.pool.Close()
	}
}

func flareOptions(cfg config.Config) flare.Options {
	return flare.Options{
		BaseURL: cfg.Flare.APIURL,
		Timeout: cfg.Flare.Timeout,
	}
}
