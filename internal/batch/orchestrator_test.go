package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/reportsync/internal/progress"
)

// recordingEmitter captures events in emission order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Events() []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Event(nil), e.events...)
}

func (e *recordingEmitter) byStage(stage progress.Stage) []progress.Event {
	var out []progress.Event
	for _, evt := range e.Events() {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

type seqIDs struct{}

func (seqIDs) NewRawID() (uuid.UUID, error) {
	return uuid.NewV7()
}

func testOrchestrator(t *testing.T, s *Syncer, emitter *recordingEmitter, concurrency int) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(s, emitter, newFixedClock(), seqIDs{}, nil, concurrency, nil)
	require.NoError(t, err)
	return o
}

func rosterOf(ids ...string) []Entity {
	entities := make([]Entity, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, Entity{ID: id, Namespace: id})
	}
	return entities
}

func TestRunEmptyRosterIsConfigError(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	s := testSyncer(t, newFakeStore(), staticResolver{}, newRecordingProcessor(), keyByName{})
	o := testOrchestrator(t, s, emitter, 2)

	_, err := o.Run(context.Background(), nil)
	require.True(t, IsConfigError(err))
	require.Empty(t, emitter.Events())
}

func TestRunDedupAcrossEntities(t *testing.T) {
	t.Parallel()

	// veh-1 already holds 2024-01-01; veh-2 holds nothing. Both see the same
	// two candidates, so veh-1 skips one and veh-2 processes both.
	store := newFakeStore()
	store.put("veh-1", "old.csv", nil)

	resolver := staticResolver{candidates: []Candidate{
		{Key: "2024-01-01", Format: "csv"},
		{Key: "2024-01-02", Format: "csv"},
	}}
	proc := newRecordingProcessor()
	s := testSyncer(t, store, resolver, proc, keyByName{"old.csv": "2024-01-01"})
	o := testOrchestrator(t, s, &recordingEmitter{}, 1)

	report, err := o.Run(context.Background(), rosterOf("veh-1", "veh-2"))
	require.NoError(t, err)
	require.Equal(t, SyncResult{Processed: 3, Skipped: 1}, report.Totals())
	require.Len(t, report.Outcomes, 2)
	require.Equal(t, StateCompleted, report.Outcomes[0].State)
	require.Equal(t, SyncResult{Processed: 1, Skipped: 1}, report.Outcomes[0].Result)
	require.Equal(t, SyncResult{Processed: 2}, report.Outcomes[1].Result)
}

func TestRunSingleFlight(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	proc := ProcessorFunc(func(context.Context, Entity, Candidate) error {
		once.Do(func() { close(started) })
		<-block
		return nil
	})
	resolver := staticResolver{candidates: []Candidate{{Key: "2024-01-01"}}}
	s := testSyncer(t, newFakeStore(), resolver, proc, keyByName{})
	emitter := &recordingEmitter{}
	o := testOrchestrator(t, s, emitter, 1)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), rosterOf("veh-1"))
		done <- err
	}()

	<-started
	_, err := o.Run(context.Background(), rosterOf("veh-1"))
	require.ErrorIs(t, err, ErrRunInProgress)

	close(block)
	require.NoError(t, <-done)

	// The rejected run must not have emitted anything: exactly one RUN_START.
	require.Len(t, emitter.byStage(progress.StageRunStart), 1)
}

func TestRunFaultIsolation(t *testing.T) {
	t.Parallel()

	// veh-2's source is unreachable; veh-1 and veh-3 must still complete.
	fetcher := SourceFunc(func(_ context.Context, e Entity) ([]byte, error) {
		if e.ID == "veh-2" {
			return nil, context.DeadlineExceeded
		}
		return nil, nil
	})
	resolver := staticResolver{candidates: []Candidate{{Key: "2024-01-01"}}}
	s, err := NewSyncer(fetcher, resolver, newRecordingProcessor(), newFakeStore(), keyByName{}, nil)
	require.NoError(t, err)

	emitter := &recordingEmitter{}
	o := testOrchestrator(t, s, emitter, 3)

	report, err := o.Run(context.Background(), rosterOf("veh-1", "veh-2", "veh-3"))
	require.NoError(t, err)

	states := map[string]EntityState{}
	for _, outcome := range report.Outcomes {
		states[outcome.Entity.ID] = outcome.State
	}
	require.Equal(t, StateCompleted, states["veh-1"])
	require.Equal(t, StateFailed, states["veh-2"])
	require.Equal(t, StateCompleted, states["veh-3"])

	require.Len(t, emitter.byStage(progress.StageEntityError), 1)
	require.Len(t, emitter.byStage(progress.StageEntityDone), 2)
}

func TestRunPanicBecomesFailedOutcome(t *testing.T) {
	t.Parallel()

	proc := newRecordingProcessor()
	proc.panicKeys["2024-01-01"] = struct{}{}
	resolver := staticResolver{candidates: []Candidate{{Key: "2024-01-01"}}}
	s := testSyncer(t, newFakeStore(), resolver, proc, keyByName{})
	emitter := &recordingEmitter{}
	o := testOrchestrator(t, s, emitter, 1)

	report, err := o.Run(context.Background(), rosterOf("veh-1"))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	require.Equal(t, StateFailed, report.Outcomes[0].State)
	require.Contains(t, report.Outcomes[0].Err, "panic")

	// The guard must be free again after the panic.
	_, err = o.Run(context.Background(), rosterOf("veh-1"))
	require.NoError(t, err)
}

func TestRunDoneIsLastEvent(t *testing.T) {
	t.Parallel()

	resolver := staticResolver{candidates: []Candidate{
		{Key: "2024-01-01"}, {Key: "2024-01-02"},
	}}
	s := testSyncer(t, newFakeStore(), resolver, newRecordingProcessor(), keyByName{})
	emitter := &recordingEmitter{}
	o := testOrchestrator(t, s, emitter, 4)

	_, err := o.Run(context.Background(), rosterOf("veh-1", "veh-2", "veh-3"))
	require.NoError(t, err)

	events := emitter.Events()
	require.NotEmpty(t, events)
	require.Equal(t, progress.StageRunStart, events[0].Stage)
	require.Equal(t, progress.StageRunDone, events[len(events)-1].Stage)

	// Per-entity ordering: START before any PROGRESS before the terminal.
	seenStart := map[string]bool{}
	seenTerminal := map[string]bool{}
	for _, evt := range events[1 : len(events)-1] {
		switch evt.Stage {
		case progress.StageEntityStart:
			require.False(t, seenStart[evt.EntityID])
			seenStart[evt.EntityID] = true
		case progress.StageEntityProgress:
			require.True(t, seenStart[evt.EntityID])
			require.False(t, seenTerminal[evt.EntityID])
		case progress.StageEntityDone, progress.StageEntityError:
			require.True(t, seenStart[evt.EntityID])
			require.False(t, seenTerminal[evt.EntityID])
			seenTerminal[evt.EntityID] = true
		}
	}
	require.Len(t, seenTerminal, 3)

	done := emitter.byStage(progress.StageRunDone)
	require.Len(t, done, 1)
	require.Equal(t, 3, done[0].Entities)
	require.Equal(t, 6, done[0].Processed)
	require.Greater(t, done[0].Dur, time.Duration(0))
}

func TestRunConcurrencyFloor(t *testing.T) {
	t.Parallel()

	s := testSyncer(t, newFakeStore(), staticResolver{}, newRecordingProcessor(), keyByName{})
	o, err := NewOrchestrator(s, &recordingEmitter{}, newFixedClock(), seqIDs{}, nil, 0, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), rosterOf("veh-1", "veh-2"))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
}
