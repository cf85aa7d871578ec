package portal

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetops/reportsync/internal/batch"
)

// FormatRequest tags request-phase candidates.
const FormatRequest = "request"

// RequestResolver emits exactly one report-generation request per entity,
// keyed by the current date. The request phase runs against an empty scratch
// store, so requests are never deduplicated away.
type RequestResolver struct {
	urlTemplate string
	clock       batch.Clock
}

// NewRequestResolver constructs a RequestResolver. The template must contain
// a single %s placeholder for the entity id.
func NewRequestResolver(urlTemplate string, clock batch.Clock) (*RequestResolver, error) {
	if !strings.Contains(urlTemplate, "%s") {
		return nil, fmt.Errorf("report url template needs a %%s placeholder")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &RequestResolver{urlTemplate: urlTemplate, clock: clock}, nil
}

// Resolve implements batch.CandidateResolver; the raw payload is unused.
func (r *RequestResolver) Resolve(_ context.Context, entity batch.Entity, _ []byte) ([]batch.Candidate, error) {
	return []batch.Candidate{{
		Key:     batch.KeyFromTime(r.clock.Now()),
		Format:  FormatRequest,
		Locator: fmt.Sprintf(r.urlTemplate, entity.ID),
	}}, nil
}
