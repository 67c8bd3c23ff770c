package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    name       TEXT         PRIMARY KEY,
    body       TEXT         NOT NULL,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

// Migrate creates the transcripts table if it does not exist. It is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("assets: postgres: migrate: %w", err)
	}
	return nil
}

// PostgresSource reads assets from the transcripts table.
type PostgresSource struct {
	pool *pgxpool.Pool
}

var _ Source = (*PostgresSource)(nil)

// NewPostgresSource connects to dsn, pings, and runs [Migrate].
func NewPostgresSource(ctx context.Context, dsn string) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("assets: postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("assets: postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("assets: postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSource{pool: pool}, nil
}

// Name implements [Source].
func (s *PostgresSource) Name() string { return "postgres" }

// Fetch implements [Source].
func (s *PostgresSource) Fetch(ctx context.Context, name string) (string, error) {
	var body string
	err := s.pool.QueryRow(ctx, `SELECT body FROM transcripts WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("assets: postgres: %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("assets: postgres: fetch %s: %w", name, err)
	}
	return body, nil
}

// Put inserts or replaces the body stored under name.
func (s *PostgresSource) Put(ctx context.Context, name, body string) error {
	const q = `
INSERT INTO transcripts (name, body, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, name, body); err != nil {
		return fmt.Errorf("assets: postgres: put %s: %w", name, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresSource) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("assets: postgres: ping: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (s *PostgresSource) Close() error {
	s.pool.Close()
	return nil
}
