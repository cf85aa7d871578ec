package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
)

// FormatSummary tags summary-phase candidates.
const FormatSummary = "summary"

var (
	tempColumnPattern = regexp.MustCompile(`(?i)battery.*temp.*\d+`)
	summaryNamePattern = regexp.MustCompile(`^summary_.+_(\d{4}-\d{2}-\d{2})\.txt$`)

	socColumns = []string{"batteryStateOfCharge", "battery_state_of_charge", "SoC"}
)

// SummaryResolver emits at most one candidate per entity: a summary keyed by
// the newest artifact date in the namespace. Entities with no keyed CSV
// artifacts yield zero candidates, which completes the entity successfully.
type SummaryResolver struct {
	store     batch.ArtifactStore
	extractor batch.KeyExtractor
	logger    *zap.Logger
}

// NewSummaryResolver constructs a SummaryResolver over the artifact store.
func NewSummaryResolver(store batch.ArtifactStore, extractor batch.KeyExtractor, logger *zap.Logger) *SummaryResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryResolver{store: store, extractor: extractor, logger: logger}
}

// Resolve implements batch.CandidateResolver; the raw payload is unused.
func (r *SummaryResolver) Resolve(ctx context.Context, entity batch.Entity, _ []byte) ([]batch.Candidate, error) {
	names, err := r.store.List(ctx, entity.Namespace)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for %s: %w", entity.ID, err)
	}
	var newest batch.ContentKey
	for _, name := range names {
		key, err := r.extractor.ExtractKey(ctx, r.store, entity.Namespace, name)
		if err != nil {
			continue
		}
		if newest == "" || string(key) > string(newest) {
			newest = key
		}
	}
	if newest == "" {
		r.logger.Info("no keyed artifacts to summarize", zap.String("entity_id", entity.ID))
		return nil, nil
	}
	return []batch.Candidate{{Key: newest, Format: FormatSummary}}, nil
}

// SummaryKeyExtractor keys existing summary artifacts by the date embedded in
// their filename, so a summary covering the newest data is generated exactly
// once per period.
type SummaryKeyExtractor struct{}

// ExtractKey implements batch.KeyExtractor for summary artifacts.
func (SummaryKeyExtractor) ExtractKey(_ context.Context, _ batch.ArtifactStore, _, name string) (batch.ContentKey, error) {
	m := summaryNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("%s: not a summary artifact", name)
	}
	return batch.ContentKey(m[1]), nil
}

// SummaryProcessor consolidates an entity's CSV artifacts into one plain-text
// summary artifact written back into the namespace.
type SummaryProcessor struct {
	store  batch.ArtifactStore
	logger *zap.Logger
}

// NewSummaryProcessor constructs a SummaryProcessor.
func NewSummaryProcessor(store batch.ArtifactStore, logger *zap.Logger) *SummaryProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryProcessor{store: store, logger: logger}
}

// Process implements batch.ItemProcessor: it reads every CSV artifact of the
// entity, computes temperature/charge statistics per file, and writes
// summary_<entity>_<key>.txt. An individual unreadable file is skipped, not
// fatal; a summary with zero usable files is an error.
func (p *SummaryProcessor) Process(ctx context.Context, entity batch.Entity, cand batch.Candidate) error {
	names, err := p.store.List(ctx, entity.Namespace)
	if err != nil {
		return fmt.Errorf("list artifacts for %s: %w", entity.ID, err)
	}
	sort.Strings(names)

	var sections []string
	for _, name := range names {
		if !strings.HasSuffix(strings.ToLower(name), ".csv") {
			continue
		}
		stats, err := p.fileStats(ctx, entity.Namespace, name)
		if err != nil {
			p.logger.Warn("artifact excluded from summary",
				zap.String("entity_id", entity.ID),
				zap.String("artifact", name),
				zap.Error(err),
			)
			continue
		}
		sections = append(sections, stats.render(name))
	}
	if len(sections) == 0 {
		return fmt.Errorf("no usable artifacts for %s", entity.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TEMPERATURE PROFILE SUMMARY — %s\n", entity.ID)
	fmt.Fprintf(&b, "Period: %s\nFiles: %d\n\n", cand.Key, len(sections))
	for _, section := range sections {
		b.WriteString(section)
		b.WriteString("\n")
	}

	name := fmt.Sprintf("summary_%s_%s.txt", entity.ID, cand.Key)
	if _, err := p.store.Put(ctx, entity.Namespace, name, "text/plain; charset=utf-8", strings.NewReader(b.String())); err != nil {
		return fmt.Errorf("write summary for %s: %w", entity.ID, err)
	}
	return nil
}

type fileStats struct {
	rows         int
	maxTemp      float64
	minTemp      float64
	maxImbalance float64
	startSoC     float64
	endSoC       float64
	hasSoC       bool
}

func (s fileStats) render(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", name)
	fmt.Fprintf(&b, "rows: %d\n", s.rows)
	fmt.Fprintf(&b, "max temp: %.2f C  min temp: %.2f C  max imbalance: %.2f C\n",
		s.maxTemp, s.minTemp, s.maxImbalance)
	if s.hasSoC {
		fmt.Fprintf(&b, "state of charge: %.2f -> %.2f\n", s.startSoC, s.endSoC)
	}
	return b.String()
}

func (p *SummaryProcessor) fileStats(ctx context.Context, namespace, name string) (fileStats, error) {
	rc, err := p.store.Open(ctx, namespace, name)
	if err != nil {
		return fileStats{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return fileStats{}, fmt.Errorf("read header: %w", err)
	}

	var tempCols []int
	socCol := -1
	for i, field := range header {
		trimmed := strings.TrimSpace(field)
		if tempColumnPattern.MatchString(trimmed) {
			tempCols = append(tempCols, i)
			continue
		}
		for _, candidate := range socColumns {
			if strings.EqualFold(trimmed, candidate) {
				socCol = i
				break
			}
		}
	}
	if len(tempCols) == 0 {
		return fileStats{}, fmt.Errorf("no temperature columns")
	}

	stats := fileStats{maxTemp: -1 << 30, minTemp: 1 << 30}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fileStats{}, fmt.Errorf("read row: %w", err)
		}
		rowMax, rowMin, ok := rowTempRange(row, tempCols)
		if !ok {
			continue
		}
		stats.rows++
		if rowMax > stats.maxTemp {
			stats.maxTemp = rowMax
		}
		if rowMin < stats.minTemp {
			stats.minTemp = rowMin
		}
		if imbalance := rowMax - rowMin; imbalance > stats.maxImbalance {
			stats.maxImbalance = imbalance
		}
		if socCol >= 0 && socCol < len(row) {
			if soc, err := strconv.ParseFloat(strings.TrimSpace(row[socCol]), 64); err == nil {
				if !stats.hasSoC {
					stats.startSoC = soc
					stats.hasSoC = true
				}
				stats.endSoC = soc
			}
		}
	}
	if stats.rows == 0 {
		return fileStats{}, fmt.Errorf("no numeric rows")
	}
	return stats, nil
}

// rowTempRange returns the max/min over the row's temperature cells, clamped
// to the plausible sensor range like the source data requires.
func rowTempRange(row []string, tempCols []int) (float64, float64, bool) {
	const lo, hi = -50, 300
	rowMax, rowMin := float64(lo), float64(hi)
	found := false
	for _, col := range tempCols {
		if col >= len(row) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
		if err != nil {
			continue
		}
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		found = true
		if v > rowMax {
			rowMax = v
		}
		if v < rowMin {
			rowMin = v
		}
	}
	return rowMax, rowMin, found
}
