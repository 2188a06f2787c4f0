// Package postgres stores the translation journal in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/lingobridge/internal/history"
)

// Schema is the SQL DDL for the translation journal.
const Schema = `
CREATE TABLE IF NOT EXISTS translation_exchanges (
    id              UUID PRIMARY KEY,
    direction       TEXT NOT NULL,
    source_locale   TEXT NOT NULL,
    target_locale   TEXT NOT NULL,
    source_text     TEXT NOT NULL,
    translated_text TEXT NOT NULL,
    latency_ms      BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_translation_exchanges_created ON translation_exchanges(created_at DESC);
`

// DB is the subset of *pgxpool.Pool used by [Store].
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [history.Store] backed by PostgreSQL.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

var _ history.Store = (*Store)(nil)

// New wraps an existing connection or pool. Call [Store.Migrate] before use.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, verifies the connection and applies [Schema].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: ping: %w", err)
	}
	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the journal table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history postgres: migrate: %w", err)
	}
	return nil
}

// Ping checks the connection. Stores built with [New] report healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool opened by [Open].
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Record implements history.Store.
func (s *Store) Record(ctx context.Context, ex history.Exchange) error {
	ex = history.Normalize(ex)
	const query = `
		INSERT INTO translation_exchanges (
			id, direction, source_locale, target_locale,
			source_text, translated_text, latency_ms, created_at
		) VALUES ($1::uuid,$2,$3,$4,$5,$6,$7,$8)`
	_, err := s.db.Exec(ctx, query,
		ex.ID.String(), ex.Direction, ex.Source, ex.Target,
		ex.SourceText, ex.TranslatedText, ex.Latency.Milliseconds(), ex.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history postgres: record: %w", err)
	}
	return nil
}

// Recent implements history.Store.
func (s *Store) Recent(ctx context.Context, limit int) ([]history.Exchange, error) {
	if limit <= 0 {
		limit = history.DefaultMaxEntries
	}
	const query = `
		SELECT id::text, direction, source_locale, target_locale,
		       source_text, translated_text, latency_ms, created_at
		FROM translation_exchanges
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history postgres: recent: %w", err)
	}
	defer rows.Close()

	var out []history.Exchange
	for rows.Next() {
		var (
			ex        history.Exchange
			id        string
			latencyMS int64
		)
		if err := rows.Scan(&id, &ex.Direction, &ex.Source, &ex.Target,
			&ex.SourceText, &ex.TranslatedText, &latencyMS, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("history postgres: scan: %w", err)
		}
		if ex.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("history postgres: parse id %q: %w", id, err)
		}
		ex.Latency = time.Duration(latencyMS) * time.Millisecond
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history postgres: rows: %w", err)
	}
	return out, nil
}
