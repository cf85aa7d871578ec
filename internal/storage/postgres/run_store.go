// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/reportsync/internal/store"
)

// RunStoreConfig controls the Postgres connection pool.
type RunStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool pgxPool
}

// NewRunStore connects a pool using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (testing).
func NewRunStoreWithPool(pool pgxPool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	s.pool.Close()
}

// CreateRun inserts a running batch run; re-inserting the same id is a no-op
// so replayed RUN_START events stay idempotent.
func (s *RunStore) CreateRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, entities int) error {
	query := `
		INSERT INTO batch_runs (id, started_at, status, entities)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning, entities); err != nil {
		return fmt.Errorf("insert batch run: %w", err)
	}
	return nil
}

// FinishRun marks the run terminal with its totals.
func (s *RunStore) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	processed, skipped, failed int,
) error {
	query := `
		UPDATE batch_runs
		SET finished_at = $2, status = $3, processed = $4, skipped = $5, failed = $6
		WHERE id = $1;
	`
	if _, err := s.pool.Exec(ctx, query, runID, finishedAt, status, processed, skipped, failed); err != nil {
		return fmt.Errorf("finish batch run: %w", err)
	}
	return nil
}

// RecordEntityOutcome upserts one entity's terminal record for the run.
func (s *RunStore) RecordEntityOutcome(ctx context.Context, outcome store.EntityOutcome) error {
	query := `
		INSERT INTO entity_outcomes (run_id, entity_id, status, processed, skipped, failed, note, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, entity_id) DO UPDATE
		SET status = EXCLUDED.status,
		    processed = EXCLUDED.processed,
		    skipped = EXCLUDED.skipped,
		    failed = EXCLUDED.failed,
		    note = EXCLUDED.note,
		    finished_at = EXCLUDED.finished_at;
	`
	_, err := s.pool.Exec(ctx, query,
		outcome.RunID,
		outcome.EntityID,
		outcome.Status,
		outcome.Processed,
		outcome.Skipped,
		outcome.Failed,
		outcome.Note,
		outcome.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert entity outcome: %w", err)
	}
	return nil
}

// GetRun loads a single run or returns store.ErrNotFound.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, processed, skipped, failed
		FROM batch_runs
		WHERE id = $1;
	`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Processed,
		&run.Skipped,
		&run.Failed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("select batch run: %w", err)
	}
	return run, nil
}

// ListEntityOutcomes returns the per-entity records for one run.
func (s *RunStore) ListEntityOutcomes(ctx context.Context, runID uuid.UUID) ([]store.EntityOutcome, error) {
	query := `
		SELECT run_id, entity_id, status, processed, skipped, failed, note, finished_at
		FROM entity_outcomes
		WHERE run_id = $1
		ORDER BY entity_id;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("select entity outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []store.EntityOutcome
	for rows.Next() {
		var o store.EntityOutcome
		if err := rows.Scan(
			&o.RunID,
			&o.EntityID,
			&o.Status,
			&o.Processed,
			&o.Skipped,
			&o.Failed,
			&o.Note,
			&o.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entity outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity outcomes: %w", err)
	}
	return outcomes, nil
}
