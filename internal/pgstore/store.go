// Package pgstore keeps configuration files in Postgres for deployments
// that run the service outside of splunkd.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/flare-systems/flare-splunk/internal/metrics"
	"github.com/flare-systems/flare-splunk/internal/settings"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements settings.ConfigStore on the conf_* tables.
type Store struct {
	db DBTX
}

// New returns a Store backed by db, a pool or a transaction.
func New(db DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) ListFiles(ctx context.Context) (out []string, err error) {
	defer func() { metrics.ObserveRemoteRequest("postgres", err) }()

	return s.names(ctx, `SELECT name FROM conf_files ORDER BY name`)
}

func (s *Store) CreateFile(ctx context.Context, file string) (err error) {
	defer func() { metrics.ObserveRemoteRequest("postgres", err) }()

	_, err = s.db.Exec(ctx, `INSERT INTO conf_files (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, file)
	if err != nil {
		return fmt.Errorf("insert conf file %s: %w", file, err)
	}
	return nil
}

func (s *Store) ListStanzas(ctx context.Context, file string) (out []string, err error) {
	defer func() { metrics.ObserveRemoteRequest("postgres", err) }()

	if err := s.fileExists(ctx, file); err != nil {
		return nil, err
	}
	return s.names(ctx, `SELECT name FROM conf_stanzas WHERE file = $1 ORDER BY name`, file)
}

func (s *Store) CreateStanza(ctx context.Context, file, stanza string) (err error) {
	defer func() { metrics.ObserveRemoteRequest("postgres", err) }()

	_, err = s.db.Exec(ctx, `INSERT INTO conf_stanzas (file, name) VALUES ($1, $2) ON CONFLICT (file, name) DO NOTHING`, file, stanza)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("conf file %s: %w", file, settings.ErrNotFound)
		}
		return fmt.Errorf("insert stanza %s/%s: %w", file, stanza, err)
	}
	return nil
}

func (s *Store) StanzaProperties(ctx context.Context, file, stanza string) (props map[string]string, err error) {
	defer func() { metrics.ObserveRemoteRequest("postgres", err) }()

	var exists bool
	err = s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conf_stanzas WHERE file = $1 AND name = $2)`, file, stanza).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup stanza %s/%s: %w", file, stanza, err)
	}
	if !exists {
		return nil, fmt.Errorf("stanza %s/%s: %w", file, stanza, settings.ErrNotFound)
	}

	rows, err := s.db.Query(ctx, `SELECT name, value FROM conf_properties WHERE file = $1 AND stanza = $2`, file, stanza)
	if err != nil {
		return nil, fmt.Errorf("query properties of %s/%s: %w", file, stanza, err)
	}
	defer rows.Close()

	props = map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		props[name] = value
	}
	return props, rows.Err()
}

// UpdateStanza upserts props in one batch. The stanza must exist.
func (s *Store) UpdateStanza(ctx context.Context, file, stanza string, props map[string]string) (err error) {
	defer func() { metrics.ObserveRemoteRequest("postgres", err) }()

	if len(props) == 0 {
		return nil
	}
	names := make([]string, 0, len(props))
	values := make([]string, 0, len(props))
	for k, v := range props {
		names = append(names, k)
		values = append(values, v)
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO conf_properties (file, stanza, name, value)
SELECT $1, $2, p.name, p.value
FROM unnest($3::text[], $4::text[]) AS p(name, value)
ON CONFLICT (file, stanza, name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		file, stanza, names, values)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("stanza %s/%s: %w", file, stanza, settings.ErrNotFound)
		}
		return fmt.Errorf("update stanza %s/%s: %w", file, stanza, err)
	}
	return nil
}

func (s *Store) fileExists(ctx context.Context, file string) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conf_files WHERE name = $1)`, file).Scan(&exists); err != nil {
		return fmt.Errorf("lookup conf file %s: %w", file, err)
	}
	if !exists {
		return fmt.Errorf("conf file %s: %w", file, settings.ErrNotFound)
	}
	return nil
}

func (s *Store) names(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return names, nil
}

var _ settings.ConfigStore = (*Store)(nil)
