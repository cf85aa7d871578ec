package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/fleetops/reportsync/internal/batch"
)

// createdAtColumn is the timestamp column reports are keyed by.
const createdAtColumn = "createdAt"

// CSVKeyExtractor reads the first data row's createdAt cell of a CSV artifact
// and uses its calendar date as the artifact's ContentKey.
//
// Only the first row is consulted, as a proxy for "this whole period was
// already fetched". An artifact whose first row is missing or corrupt
// contributes nothing to the dedup set and will be fetched again; this
// mirrors the long-standing behavior the skip/process counts depend on, so
// it is intentionally not widened to scan further rows.
type CSVKeyExtractor struct{}

// ExtractKey implements batch.KeyExtractor for CSV artifacts.
func (CSVKeyExtractor) ExtractKey(ctx context.Context, store batch.ArtifactStore, namespace, name string) (batch.ContentKey, error) {
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		return "", fmt.Errorf("%s: not a csv artifact", name)
	}
	rc, err := store.Open(ctx, namespace, name)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return "", fmt.Errorf("read header of %s: %w", name, err)
	}
	col := -1
	for i, field := range header {
		if strings.EqualFold(strings.TrimSpace(field), createdAtColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return "", fmt.Errorf("%s: no %s column", name, createdAtColumn)
	}

	first, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return "", fmt.Errorf("%s: no data rows", name)
		}
		return "", fmt.Errorf("read first row of %s: %w", name, err)
	}
	if col >= len(first) {
		return "", fmt.Errorf("%s: first row has no %s cell", name, createdAtColumn)
	}
	key, err := batch.ParseKey(strings.TrimSpace(first[col]))
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return key, nil
}
