package processor

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
)

// FormatObject tags upload-phase candidates.
const FormatObject = "object"

// UploadResolver emits one candidate per artifact in the entity's local
// namespace. For this phase the artifact name itself is the dedup identity:
// an object already present remotely is skipped, everything else is copied.
type UploadResolver struct {
	store batch.ArtifactStore
}

// NewUploadResolver constructs an UploadResolver over the local store.
func NewUploadResolver(store batch.ArtifactStore) *UploadResolver {
	return &UploadResolver{store: store}
}

// Resolve implements batch.CandidateResolver; the raw payload is unused.
func (r *UploadResolver) Resolve(ctx context.Context, entity batch.Entity, _ []byte) ([]batch.Candidate, error) {
	names, err := r.store.List(ctx, entity.Namespace)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for %s: %w", entity.ID, err)
	}
	candidates := make([]batch.Candidate, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, batch.Candidate{
			Key:     batch.ContentKey(name),
			Format:  FormatObject,
			Locator: name,
		})
	}
	return candidates, nil
}

// NameKeyExtractor keys an artifact by its own name. Used for the upload
// phase, where the dedup scan runs against the remote store's listing.
type NameKeyExtractor struct{}

// ExtractKey implements batch.KeyExtractor.
func (NameKeyExtractor) ExtractKey(_ context.Context, _ batch.ArtifactStore, _, name string) (batch.ContentKey, error) {
	if name == "" {
		return "", fmt.Errorf("empty artifact name")
	}
	return batch.ContentKey(name), nil
}

// Upload copies one local artifact to the remote store under the same
// namespace and name.
type Upload struct {
	local  batch.ArtifactStore
	remote batch.ArtifactStore
	logger *zap.Logger
}

// NewUpload constructs an Upload processor.
func NewUpload(local, remote batch.ArtifactStore, logger *zap.Logger) (*Upload, error) {
	if local == nil || remote == nil {
		return nil, fmt.Errorf("local and remote stores are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upload{local: local, remote: remote, logger: logger}, nil
}

// Process implements batch.ItemProcessor. Re-uploading overwrites the remote
// object, so interrupted runs can safely repeat.
func (u *Upload) Process(ctx context.Context, entity batch.Entity, cand batch.Candidate) error {
	rc, err := u.local.Open(ctx, entity.Namespace, cand.Locator)
	if err != nil {
		return fmt.Errorf("open local artifact %s: %w", cand.Locator, err)
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(cand.Locator))
	uri, err := u.remote.Put(ctx, entity.Namespace, cand.Locator, contentType, rc)
	if err != nil {
		return fmt.Errorf("upload artifact %s: %w", cand.Locator, err)
	}
	u.logger.Info("artifact uploaded",
		zap.String("entity_id", entity.ID),
		zap.String("artifact", cand.Locator),
		zap.String("uri", uri),
	)
	return nil
}
