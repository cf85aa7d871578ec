// Package store declares interfaces for persisting batch run outcomes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the batch_runs status column.
type RunStatus string

// Run statuses persisted in batch_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models the batch_runs table for API responses.
type Run struct {
	ID uuid.UUID
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run reaches a terminal status.
	FinishedAt *time.Time
	Status     RunStatus
	// Processed/Skipped/Failed are run-wide totals, written at completion.
	Processed int
	Skipped   int
	Failed    int
}

// EntityOutcome models one entity's terminal record within a run.
type EntityOutcome struct {
	RunID      uuid.UUID
	EntityID   string
	Status     RunStatus
	Processed  int
	Skipped    int
	Failed     int
	Note       string
	FinishedAt time.Time
}

// RunRepository persists run lifecycle and per-entity outcomes.
type RunRepository interface {
	// CreateRun inserts (or idempotently re-marks) a running run.
	CreateRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, entities int) error
	// FinishRun marks the run finished with totals.
	FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, processed, skipped, failed int) error
	// RecordEntityOutcome upserts one entity's terminal state for the run.
	RecordEntityOutcome(ctx context.Context, outcome EntityOutcome) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListEntityOutcomes returns the per-entity records for one run.
	ListEntityOutcomes(ctx context.Context, runID uuid.UUID) ([]EntityOutcome, error)
}
