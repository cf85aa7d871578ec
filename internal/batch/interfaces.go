package batch

import (
	"context"
	"io"
	"time"
)

// SourceFetcher retrieves the raw payload candidates are resolved from. The
// payload is opaque to the engine; a fetch failure is entity-fatal.
type SourceFetcher interface {
	Fetch(ctx context.Context, entity Entity) ([]byte, error)
}

// SourceFunc adapts a function to SourceFetcher. Phases that resolve
// candidates from storage alone use one returning a nil payload.
type SourceFunc func(ctx context.Context, entity Entity) ([]byte, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, entity Entity) ([]byte, error) {
	return f(ctx, entity)
}

// CandidateResolver turns a raw payload into candidates, already tie-broken
// so that at most one candidate exists per ContentKey, in source order.
type CandidateResolver interface {
	Resolve(ctx context.Context, entity Entity, raw []byte) ([]Candidate, error)
}

// ItemProcessor performs the side-effecting work for one candidate. It must
// be idempotent enough that re-invocation on a later run does not corrupt
// state. Failures are isolated per candidate.
type ItemProcessor interface {
	Process(ctx context.Context, entity Entity, cand Candidate) error
}

// ProcessorFunc adapts a function to ItemProcessor.
type ProcessorFunc func(ctx context.Context, entity Entity, cand Candidate) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, entity Entity, cand Candidate) error {
	return f(ctx, entity, cand)
}

// ArtifactStore is a namespaced blob store. Local disk, memory, and GCS
// implementations live under internal/storage.
type ArtifactStore interface {
	// List returns artifact names under the namespace; a missing namespace
	// yields an empty list, not an error.
	List(ctx context.Context, namespace string) ([]string, error)
	Open(ctx context.Context, namespace, name string) (io.ReadCloser, error)
	// Put writes an artifact and returns its URI.
	Put(ctx context.Context, namespace, name, contentType string, data io.Reader) (string, error)
}

// KeyExtractor derives the ContentKey of a persisted artifact. Extraction
// failure marks the artifact as contributing nothing to the dedup set; it is
// never fatal to a scan.
type KeyExtractor interface {
	ExtractKey(ctx context.Context, store ArtifactStore, namespace, name string) (ContentKey, error)
}

// Clock returns the current time (swapped for a fake in tests).
type Clock interface {
	Now() time.Time
}
