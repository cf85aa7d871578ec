package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetops/reportsync/internal/batch"
)

const sampleTable = `
<html><body><table>
<tr><th>Date</th><th>CSV</th><th>CAN</th></tr>
<tr>
  <td>1/9/2025</td>
  <td><a href="http://reports/csv/1">csv</a></td>
  <td><a href="http://reports/can/1">can</a></td>
</tr>
<tr>
  <td>2/9/2025</td>
  <td><a href="http://reports/csv/2">csv</a></td>
  <td></td>
</tr>
<tr>
  <td>not a date</td>
  <td><a href="http://reports/csv/3">csv</a></td>
  <td><a href="http://reports/can/3">can</a></td>
</tr>
<tr>
  <td>3/9/2025</td>
  <td></td>
  <td></td>
</tr>
</table></body></html>`

func TestTableResolverPrefersCAN(t *testing.T) {
	t.Parallel()

	resolver := NewTableResolver(nil)
	candidates, err := resolver.Resolve(context.Background(), batch.Entity{ID: "veh-1"}, []byte(sampleTable))
	require.NoError(t, err)

	// Header row and the dateless row are skipped; the linkless row yields
	// nothing; the row with both links keeps only CAN.
	require.Len(t, candidates, 2)

	require.Equal(t, batch.ContentKey("2025-09-01"), candidates[0].Key)
	require.Equal(t, FormatCAN, candidates[0].Format)
	require.Equal(t, "http://reports/can/1", candidates[0].Locator)

	require.Equal(t, batch.ContentKey("2025-09-02"), candidates[1].Key)
	require.Equal(t, FormatCSV, candidates[1].Format)
	require.Equal(t, "http://reports/csv/2", candidates[1].Locator)
}

func TestTableResolverEmptyPayload(t *testing.T) {
	t.Parallel()

	resolver := NewTableResolver(nil)
	candidates, err := resolver.Resolve(context.Background(), batch.Entity{ID: "veh-1"}, nil)
	require.NoError(t, err)
	require.Empty(t, candidates)
}
