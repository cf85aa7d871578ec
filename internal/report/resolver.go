// Package report contains the fleet-report domain pieces plugged into the
// batch engine: the emailed-table candidate resolver, artifact key
// extractors, and the consolidated summary phase.
package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
)

// Report formats, in priority order. When a table row offers both, only the
// CAN link is taken; the CSV link for the same date is discarded.
const (
	FormatCAN = "can"
	FormatCSV = "csv"
)

// TableResolver parses the emailed HTML report table into candidates. Each
// table row is "date | CSV link | CAN link"; one candidate is produced per
// row, CAN preferred over CSV. Rows whose date cell cannot be parsed are
// logged and dropped, never retried.
type TableResolver struct {
	logger *zap.Logger
}

// NewTableResolver constructs a TableResolver.
func NewTableResolver(logger *zap.Logger) *TableResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableResolver{logger: logger}
}

// Resolve implements batch.CandidateResolver over an HTML payload.
func (r *TableResolver) Resolve(_ context.Context, entity batch.Entity, raw []byte) ([]batch.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse report table for %s: %w", entity.ID, err)
	}

	var candidates []batch.Candidate
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 3 {
			return
		}
		dateText := cols.Eq(0).Text()
		key, err := batch.ParseKey(dateText)
		if err != nil {
			r.logger.Warn("report row dropped: unparseable date",
				zap.String("entity_id", entity.ID),
				zap.String("cell", dateText),
			)
			return
		}

		if href, ok := firstHref(cols.Eq(2)); ok {
			candidates = append(candidates, batch.Candidate{Key: key, Format: FormatCAN, Locator: href})
			return
		}
		if href, ok := firstHref(cols.Eq(1)); ok {
			candidates = append(candidates, batch.Candidate{Key: key, Format: FormatCSV, Locator: href})
		}
	})
	return candidates, nil
}

func firstHref(cell *goquery.Selection) (string, bool) {
	link := cell.Find("a").First()
	if link.Length() == 0 {
		return "", false
	}
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return "", false
	}
	return href, true
}
