package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BuildDedupIndex scans the entity's namespace and collects the key of every
// artifact a key can be extracted from. The index is rebuilt from storage on
// every call so it reflects the true on-disk state even after a crashed run.
//
// Only the first valid key per artifact counts; artifacts whose key cannot be
// extracted are skipped and neither block the scan nor mark anything as
// synced. A partially written file therefore looks unsynced and gets fetched
// again, which the processors tolerate by overwriting.
func BuildDedupIndex(
	ctx context.Context,
	store ArtifactStore,
	extractor KeyExtractor,
	entity Entity,
	logger *zap.Logger,
) (map[ContentKey]struct{}, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	names, err := store.List(ctx, entity.Namespace)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for %s: %w", entity.ID, err)
	}

	index := make(map[ContentKey]struct{}, len(names))
	for _, name := range names {
		key, err := extractor.ExtractKey(ctx, store, entity.Namespace, name)
		if err != nil {
			logger.Debug("artifact skipped during dedup scan",
				zap.String("entity_id", entity.ID),
				zap.String("artifact", name),
				zap.Error(err),
			)
			continue
		}
		index[key] = struct{}{}
	}
	return index, nil
}
