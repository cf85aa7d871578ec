package batch

import (
	"fmt"
	"regexp"
	"time"
)

// ContentKey is the calendar date identifying a reporting period. It is the
// unit of deduplication: an entity syncs at most one artifact per key.
type ContentKey string

const keyLayout = "2006-01-02"

// dayFirstLayouts cover the date shapes seen in report tables ("1/9/2025"
// means the 1st of September).
var dayFirstLayouts = []string{"2/1/2006", "02/01/2006", "2006-01-02"}

var dayFirstPattern = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)

// KeyFromTime derives the ContentKey for the calendar day of t.
func KeyFromTime(t time.Time) ContentKey {
	return ContentKey(t.Format(keyLayout))
}

// ParseKey parses a day-first date string into a ContentKey. When the cell
// carries surrounding text, the first embedded dd/mm/yyyy token is used.
func ParseKey(raw string) (ContentKey, error) {
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return KeyFromTime(t), nil
		}
	}
	if m := dayFirstPattern.FindString(raw); m != "" {
		for _, layout := range dayFirstLayouts[:2] {
			if t, err := time.Parse(layout, m); err == nil {
				return KeyFromTime(t), nil
			}
		}
	}
	return "", fmt.Errorf("parse content key %q: no recognizable date", raw)
}

// Time returns the key's midnight-UTC time, mainly for comparisons.
func (k ContentKey) Time() (time.Time, error) {
	t, err := time.Parse(keyLayout, string(k))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode content key %q: %w", k, err)
	}
	return t, nil
}

// Entity is one unit of batch work with its own artifact namespace. The
// roster is loaded once at run start and is immutable for the run.
type Entity struct {
	// ID is the external identifier (e.g. a tracked asset code).
	ID string
	// Namespace is the storage namespace holding the entity's artifacts.
	Namespace string
	// Note carries optional roster metadata (free text after the id).
	Note string
}

// Candidate is a prospective unit of work for one entity. Candidates are
// produced transiently by a resolver and never persisted.
type Candidate struct {
	Key ContentKey
	// Format distinguishes report representations for the same key; the
	// resolver applies its priority order so at most one survives per key.
	Format string
	// Locator points at the source (download URL, artifact name).
	Locator string
}

// SyncResult summarizes one entity's sync.
type SyncResult struct {
	Processed int
	Skipped   int
	Failed    int
}

// EntityState tracks an entity through a run. Terminal states are final;
// retries happen only across separate runs.
type EntityState string

const (
	StatePending   EntityState = "pending"
	StateRunning   EntityState = "running"
	StateCompleted EntityState = "completed"
	StateFailed    EntityState = "failed"
)

// EntityOutcome is an entity's terminal record within a RunReport.
type EntityOutcome struct {
	Entity Entity
	State  EntityState
	Result SyncResult
	// Err holds the entity-fatal error text when State is StateFailed.
	Err string
}

// RunReport aggregates one orchestrator invocation.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []EntityOutcome
}

// Totals sums processed/skipped/failed across all entities.
func (r RunReport) Totals() SyncResult {
	var total SyncResult
	for _, o := range r.Outcomes {
		total.Processed += o.Result.Processed
		total.Skipped += o.Result.Skipped
		total.Failed += o.Result.Failed
	}
	return total
}
