package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSyncer(t *testing.T, store *fakeStore, resolver CandidateResolver, proc ItemProcessor, extractor KeyExtractor) *Syncer {
	t.Helper()
	s, err := NewSyncer(
		SourceFunc(func(context.Context, Entity) ([]byte, error) { return nil, nil }),
		resolver, proc, store, extractor, nil,
	)
	require.NoError(t, err)
	return s
}

func TestSyncSkipsAlreadySyncedKeys(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.put("veh-1", "old.csv", nil)

	resolver := staticResolver{candidates: []Candidate{
		{Key: "2024-01-01", Format: "csv", Locator: "http://reports/a"},
		{Key: "2024-01-02", Format: "can", Locator: "http://reports/b"},
	}}
	proc := newRecordingProcessor()
	s := testSyncer(t, store, resolver, proc, keyByName{"old.csv": "2024-01-01"})

	result, err := s.Sync(context.Background(), Entity{ID: "veh-1", Namespace: "veh-1"}, nil)
	require.NoError(t, err)
	require.Equal(t, SyncResult{Processed: 1, Skipped: 1}, result)

	processed := proc.Processed()
	require.Len(t, processed, 1)
	require.Equal(t, ContentKey("2024-01-02"), processed[0].Key)
}

func TestSyncFailedCandidateDoesNotAbortEntity(t *testing.T) {
	t.Parallel()

	resolver := staticResolver{candidates: []Candidate{
		{Key: "2024-01-01", Format: "csv"},
		{Key: "2024-01-02", Format: "csv"},
		{Key: "2024-01-03", Format: "csv"},
	}}
	proc := newRecordingProcessor()
	proc.failKeys["2024-01-02"] = errors.New("download blew up")
	s := testSyncer(t, newFakeStore(), resolver, proc, keyByName{})

	result, err := s.Sync(context.Background(), Entity{ID: "veh-1", Namespace: "veh-1"}, nil)
	require.NoError(t, err)
	require.Equal(t, SyncResult{Processed: 2, Failed: 1}, result)
	require.Len(t, proc.Processed(), 2)
}

func TestSyncZeroCandidatesSucceeds(t *testing.T) {
	t.Parallel()

	var final int
	s := testSyncer(t, newFakeStore(), staticResolver{}, newRecordingProcessor(), keyByName{})
	result, err := s.Sync(context.Background(), Entity{ID: "veh-1", Namespace: "veh-1"}, func(percent int, _ string) {
		final = percent
	})
	require.NoError(t, err)
	require.Equal(t, SyncResult{}, result)
	require.Equal(t, 100, final)
}

func TestSyncFetchFailureIsEntityFatal(t *testing.T) {
	t.Parallel()

	s, err := NewSyncer(
		SourceFunc(func(context.Context, Entity) ([]byte, error) { return nil, errors.New("imap down") }),
		staticResolver{}, newRecordingProcessor(), newFakeStore(), keyByName{}, nil,
	)
	require.NoError(t, err)

	_, err = s.Sync(context.Background(), Entity{ID: "veh-1", Namespace: "veh-1"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "imap down")
}

func TestSyncResolveFailureIsEntityFatal(t *testing.T) {
	t.Parallel()

	s := testSyncer(t, newFakeStore(), staticResolver{err: errors.New("bad html")}, newRecordingProcessor(), keyByName{})
	_, err := s.Sync(context.Background(), Entity{ID: "veh-1", Namespace: "veh-1"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad html")
}

func TestSyncProgressPercentsMonotonic(t *testing.T) {
	t.Parallel()

	resolver := staticResolver{candidates: []Candidate{
		{Key: "2024-01-01"}, {Key: "2024-01-02"}, {Key: "2024-01-03"}, {Key: "2024-01-04"},
	}}
	s := testSyncer(t, newFakeStore(), resolver, newRecordingProcessor(), keyByName{})

	var percents []int
	_, err := s.Sync(context.Background(), Entity{ID: "veh-1", Namespace: "veh-1"}, func(percent int, _ string) {
		percents = append(percents, percent)
	})
	require.NoError(t, err)
	require.NotEmpty(t, percents)
	require.Equal(t, 100, percents[len(percents)-1])
	for i := 1; i < len(percents); i++ {
		require.GreaterOrEqual(t, percents[i], percents[i-1])
	}
}

func TestSyncCanceledContextStopsWork(t *testing.T) {
	t.Parallel()

	resolver := staticResolver{candidates: []Candidate{{Key: "2024-01-01"}}}
	s := testSyncer(t, newFakeStore(), resolver, newRecordingProcessor(), keyByName{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Sync(ctx, Entity{ID: "veh-1", Namespace: "veh-1"}, nil)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
