package portal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetops/reportsync/internal/batch"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestRequestResolver(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 9, 3, 8, 0, 0, 0, time.UTC)}
	resolver, err := NewRequestResolver("https://portal.example.com/vehicles/%s/reports", clock)
	require.NoError(t, err)

	candidates, err := resolver.Resolve(context.Background(), batch.Entity{ID: "veh-7"}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, batch.ContentKey("2025-09-03"), candidates[0].Key)
	require.Equal(t, FormatRequest, candidates[0].Format)
	require.Equal(t, "https://portal.example.com/vehicles/veh-7/reports", candidates[0].Locator)
}

func TestRequestResolverRequiresPlaceholder(t *testing.T) {
	t.Parallel()

	_, err := NewRequestResolver("https://portal.example.com/reports", fixedClock{now: time.Now()})
	require.Error(t, err)

	_, err = NewRequestResolver("https://portal.example.com/%s", nil)
	require.Error(t, err)
}
