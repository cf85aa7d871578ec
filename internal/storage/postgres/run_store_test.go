package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/reportsync/internal/store"
)

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestCreateRunInserts(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	started := time.Unix(1756000000, 0).UTC()

	mock.ExpectExec("INSERT INTO batch_runs").
		WithArgs(runID, started, store.RunRunning, 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateRun(context.Background(), runID, started, 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRunUpdatesTotals(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	finished := time.Unix(1756000600, 0).UTC()

	mock.ExpectExec("UPDATE batch_runs").
		WithArgs(runID, finished, store.RunError, 5, 2, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FinishRun(context.Background(), runID, finished, store.RunError, 5, 2, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEntityOutcomeUpserts(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	outcome := store.EntityOutcome{
		RunID:      uuid.New(),
		EntityID:   "veh-1",
		Status:     store.RunSuccess,
		Processed:  2,
		Skipped:    1,
		FinishedAt: time.Unix(1756000300, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO entity_outcomes").
		WithArgs(
			outcome.RunID,
			outcome.EntityID,
			outcome.Status,
			outcome.Processed,
			outcome.Skipped,
			outcome.Failed,
			outcome.Note,
			outcome.FinishedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordEntityOutcome(context.Background(), outcome))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunScansRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	started := time.Unix(1756000000, 0).UTC()
	finished := time.Unix(1756000600, 0).UTC()

	rows := pgxmock.NewRows([]string{"id", "started_at", "finished_at", "status", "processed", "skipped", "failed"}).
		AddRow(runID, started, &finished, store.RunSuccess, 4, 2, 0)
	mock.ExpectQuery("SELECT id, started_at").
		WithArgs(runID).
		WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, runID, run.ID)
	require.Equal(t, started, run.StartedAt)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, finished, *run.FinishedAt)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, 4, run.Processed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()

	mock.ExpectQuery("SELECT id, started_at").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "started_at", "finished_at", "status", "processed", "skipped", "failed"}))

	_, err := s.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEntityOutcomes(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	finished := time.Unix(1756000300, 0).UTC()

	rows := pgxmock.NewRows([]string{"run_id", "entity_id", "status", "processed", "skipped", "failed", "note", "finished_at"}).
		AddRow(runID, "veh-1", store.RunSuccess, 2, 1, 0, "", finished).
		AddRow(runID, "veh-2", store.RunError, 0, 0, 1, "fetch failed", finished)
	mock.ExpectQuery("SELECT run_id, entity_id").
		WithArgs(runID).
		WillReturnRows(rows)

	outcomes, err := s.ListEntityOutcomes(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.Equal(t, "veh-1", outcomes[0].EntityID)
	require.Equal(t, store.RunError, outcomes[1].Status)
	require.Equal(t, "fetch failed", outcomes[1].Note)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreQueryFailureWrapped(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()

	mock.ExpectExec("INSERT INTO batch_runs").
		WithArgs(runID, pgxmock.AnyArg(), store.RunRunning, 1).
		WillReturnError(errors.New("connection reset"))

	err := s.CreateRun(context.Background(), runID, time.Now(), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}
