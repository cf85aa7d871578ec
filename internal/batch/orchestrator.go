package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/progress"
)

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Orchestrator drives one phase of the pipeline across the whole roster: a
// fixed pool of workers drains the entity list, each entity isolated from its
// siblings, with a single-flight guard around the run and a join barrier
// before the terminal aggregate event.
type Orchestrator struct {
	syncer      *Syncer
	emitter     progress.Emitter
	clock       Clock
	ids         IDGenerator
	concurrency int
	logger      *zap.Logger
	guard       *Guard
}

// NewOrchestrator wires an Orchestrator. A nil guard gives the orchestrator a
// private one; pass a shared Guard when several orchestrators must exclude
// each other. Concurrency values below one fall back to a single worker.
func NewOrchestrator(
	syncer *Syncer,
	emitter progress.Emitter,
	clock Clock,
	ids IDGenerator,
	guard *Guard,
	concurrency int,
	logger *zap.Logger,
) (*Orchestrator, error) {
	switch {
	case syncer == nil:
		return nil, fmt.Errorf("syncer is required")
	case emitter == nil:
		return nil, fmt.Errorf("progress emitter is required")
	case clock == nil:
		return nil, fmt.Errorf("clock is required")
	case ids == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if guard == nil {
		guard = &Guard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		syncer:      syncer,
		emitter:     emitter,
		clock:       clock,
		ids:         ids,
		concurrency: concurrency,
		logger:      logger,
		guard:       guard,
	}, nil
}

// Run executes one BatchRun over entities. At most one run is active
// process-wide: a re-entrant call returns ErrRunInProgress immediately,
// without side effects, while the original run is unaffected. An empty
// roster aborts with a ConfigError before any worker starts.
//
// The terminal StageRunDone event fires only after every entity has reached
// a terminal state, whether Completed or Failed.
func (o *Orchestrator) Run(ctx context.Context, entities []Entity) (RunReport, error) {
	if len(entities) == 0 {
		return RunReport{}, &ConfigError{Reason: "entity roster is empty"}
	}
	if !o.guard.TryAcquire() {
		o.logger.Warn("batch run rejected: another run is in progress")
		return RunReport{}, ErrRunInProgress
	}
	defer o.guard.Release()

	runID, err := o.ids.NewRawID()
	if err != nil {
		return RunReport{}, fmt.Errorf("generate run id: %w", err)
	}

	started := o.clock.Now()
	o.logger.Info("batch run started",
		zap.String("run_id", runID.String()),
		zap.Int("entities", len(entities)),
		zap.Int("concurrency", o.concurrency),
	)
	o.emitter.Emit(progress.Event{
		RunID:    progress.UUIDToBytes(runID),
		TS:       started,
		Stage:    progress.StageRunStart,
		Entities: len(entities),
	})

	outcomes := make([]EntityOutcome, len(entities))
	work := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < o.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				outcomes[idx] = o.runEntity(ctx, runID, entities[idx])
			}
		}()
	}
	for i := range entities {
		work <- i
	}
	close(work)
	wg.Wait()

	finished := o.clock.Now()
	report := RunReport{
		RunID:      runID.String(),
		StartedAt:  started,
		FinishedAt: finished,
		Outcomes:   outcomes,
	}
	totals := report.Totals()
	o.emitter.Emit(progress.Event{
		RunID:     progress.UUIDToBytes(runID),
		TS:        finished,
		Stage:     progress.StageRunDone,
		Entities:  len(entities),
		Processed: totals.Processed,
		Skipped:   totals.Skipped,
		Failed:    totals.Failed,
		Dur:       finished.Sub(started),
	})
	o.logger.Info("batch run finished",
		zap.String("run_id", runID.String()),
		zap.Int("processed", totals.Processed),
		zap.Int("skipped", totals.Skipped),
		zap.Int("failed", totals.Failed),
		zap.Duration("dur", finished.Sub(started)),
	)
	return report, nil
}

// runEntity executes one entity's sync and converts every failure mode,
// including panics from caller-supplied processors, into a terminal outcome.
func (o *Orchestrator) runEntity(ctx context.Context, runID uuid.UUID, entity Entity) (outcome EntityOutcome) {
	outcome = EntityOutcome{Entity: entity, State: StateRunning}
	started := o.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome.State = StateFailed
			outcome.Err = fmt.Sprintf("panic: %v", r)
			o.logger.Error("entity sync panicked",
				zap.String("entity_id", entity.ID),
				zap.Any("panic", r),
			)
			o.emitEntityTerminal(runID, outcome, started)
		}
	}()

	o.emitter.Emit(progress.Event{
		RunID:    progress.UUIDToBytes(runID),
		TS:       started,
		Stage:    progress.StageEntityStart,
		EntityID: entity.ID,
	})

	result, err := o.syncer.Sync(ctx, entity, func(percent int, message string) {
		o.emitter.Emit(progress.Event{
			RunID:    progress.UUIDToBytes(runID),
			TS:       o.clock.Now(),
			Stage:    progress.StageEntityProgress,
			EntityID: entity.ID,
			Percent:  percent,
			Note:     message,
		})
	})
	outcome.Result = result
	if err != nil {
		outcome.State = StateFailed
		outcome.Err = err.Error()
		o.logger.Error("entity sync failed",
			zap.String("entity_id", entity.ID),
			zap.Error(err),
		)
	} else {
		outcome.State = StateCompleted
	}
	o.emitEntityTerminal(runID, outcome, started)
	return outcome
}

func (o *Orchestrator) emitEntityTerminal(runID uuid.UUID, outcome EntityOutcome, started time.Time) {
	stage := progress.StageEntityDone
	if outcome.State == StateFailed {
		stage = progress.StageEntityError
	}
	now := o.clock.Now()
	o.emitter.Emit(progress.Event{
		RunID:     progress.UUIDToBytes(runID),
		TS:        now,
		Stage:     stage,
		EntityID:  outcome.Entity.ID,
		Percent:   100,
		Processed: outcome.Result.Processed,
		Skipped:   outcome.Result.Skipped,
		Failed:    outcome.Result.Failed,
		Dur:       now.Sub(started),
		Note:      outcome.Err,
	})
}
