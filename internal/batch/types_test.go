package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseKeyDayFirst(t *testing.T) {
	t.Parallel()

	// 1/9/2025 is the 1st of September, not January 9th.
	key, err := ParseKey("1/9/2025")
	require.NoError(t, err)
	require.Equal(t, ContentKey("2025-09-01"), key)

	key, err = ParseKey("02/01/2026")
	require.NoError(t, err)
	require.Equal(t, ContentKey("2026-01-02"), key)

	key, err = ParseKey("2024-12-31")
	require.NoError(t, err)
	require.Equal(t, ContentKey("2024-12-31"), key)
}

func TestParseKeyEmbeddedDate(t *testing.T) {
	t.Parallel()

	key, err := ParseKey("Report generated 15/3/2025 08:00")
	require.NoError(t, err)
	require.Equal(t, ContentKey("2025-03-15"), key)
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ParseKey("not a date")
	require.Error(t, err)

	_, err = ParseKey("")
	require.Error(t, err)
}

func TestKeyFromTimeAndBack(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 9, 1, 13, 45, 0, 0, time.UTC)
	key := KeyFromTime(ts)
	require.Equal(t, ContentKey("2025-09-01"), key)

	back, err := key.Time()
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), back)
}

func TestRunReportTotals(t *testing.T) {
	t.Parallel()

	report := RunReport{Outcomes: []EntityOutcome{
		{Result: SyncResult{Processed: 2, Skipped: 1}},
		{Result: SyncResult{Processed: 1, Failed: 3}},
		{},
	}}
	require.Equal(t, SyncResult{Processed: 3, Skipped: 1, Failed: 3}, report.Totals())
}

func TestIsConfigError(t *testing.T) {
	t.Parallel()

	err := &ConfigError{Reason: "entity roster is empty"}
	require.True(t, IsConfigError(err))
	require.Contains(t, err.Error(), "entity roster is empty")
	require.False(t, IsConfigError(ErrRunInProgress))
}
