package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultRecentLimit = 20

// PostgresStore persists synthesis records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS synthesis_requests (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			cache_key TEXT NOT NULL,
			text_preview TEXT NOT NULL,
			sample_rate INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
			outcome TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_synthesis_requests_created ON synthesis_requests (created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO synthesis_requests
			(id, request_id, cache_key, text_preview, sample_rate, bytes, cache_hit, outcome, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID,
		record.RequestID,
		record.CacheKey,
		record.TextPreview,
		record.SampleRate,
		record.Bytes,
		record.CacheHit,
		string(record.Outcome),
		record.DurationMS,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save synthesis record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, request_id, cache_key, text_preview, sample_rate, bytes, cache_hit, outcome, duration_ms, created_at
		 FROM synthesis_requests ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent synthesis: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r       Record
			outcome string
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.CacheKey, &r.TextPreview, &r.SampleRate, &r.Bytes, &r.CacheHit, &outcome, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan synthesis row: %w", err)
		}
		r.Outcome = Outcome(outcome)
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate synthesis rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
