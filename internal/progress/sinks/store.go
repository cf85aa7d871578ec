package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/progress"
	"github.com/fleetops/reportsync/internal/store"
)

// StoreSink persists run lifecycle and terminal entity outcomes via a
// store.RunRepository. Intermediate ENTITY_PROGRESS events are not persisted;
// the run and entity rows only track terminal state.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards lifecycle events to the repository. It respects ctx
// deadlines and returns repository errors verbatim so the hub logs them.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.CreateRun(ctx, runID, evt.TS, evt.Entities); err != nil {
				return fmt.Errorf("create run: %w", err)
			}
		case progress.StageRunDone:
			status := store.RunSuccess
			if evt.Failed > 0 {
				status = store.RunError
			}
			if err := s.repo.FinishRun(ctx, runID, evt.TS, status, evt.Processed, evt.Skipped, evt.Failed); err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		case progress.StageEntityDone, progress.StageEntityError:
			status := store.RunSuccess
			if evt.Stage == progress.StageEntityError {
				status = store.RunError
			}
			outcome := store.EntityOutcome{
				RunID:      runID,
				EntityID:   evt.EntityID,
				Status:     status,
				Processed:  evt.Processed,
				Skipped:    evt.Skipped,
				Failed:     evt.Failed,
				Note:       evt.Note,
				FinishedAt: evt.TS,
			}
			if err := s.repo.RecordEntityOutcome(ctx, outcome); err != nil {
				return fmt.Errorf("record entity outcome: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
