package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ProgressFunc receives per-entity progress while a sync is running. Percent
// stays within [0,100] and is non-decreasing for the duration of one run.
type ProgressFunc func(percent int, message string)

// Syncer runs the sync algorithm for a single entity: build the dedup index,
// resolve candidates, skip already-synced keys, process the rest. A failing
// candidate is counted and logged but never aborts the entity's remaining
// candidates.
type Syncer struct {
	fetcher   SourceFetcher
	resolver  CandidateResolver
	processor ItemProcessor
	store     ArtifactStore
	extractor KeyExtractor
	logger    *zap.Logger
}

// NewSyncer constructs a Syncer. All collaborators are required except the
// logger, which defaults to a nop.
func NewSyncer(
	fetcher SourceFetcher,
	resolver CandidateResolver,
	processor ItemProcessor,
	store ArtifactStore,
	extractor KeyExtractor,
	logger *zap.Logger,
) (*Syncer, error) {
	switch {
	case fetcher == nil:
		return nil, fmt.Errorf("source fetcher is required")
	case resolver == nil:
		return nil, fmt.Errorf("candidate resolver is required")
	case processor == nil:
		return nil, fmt.Errorf("item processor is required")
	case store == nil:
		return nil, fmt.Errorf("artifact store is required")
	case extractor == nil:
		return nil, fmt.Errorf("key extractor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		fetcher:   fetcher,
		resolver:  resolver,
		processor: processor,
		store:     store,
		extractor: extractor,
		logger:    logger,
	}, nil
}

// Sync processes one entity and returns its counters. An error return means
// the entity failed before any candidate work (source unreachable, namespace
// unlistable); candidate failures only increment Failed. Zero candidates, or
// zero new candidates, is a successful sync with Processed == 0.
func (s *Syncer) Sync(ctx context.Context, entity Entity, report ProgressFunc) (SyncResult, error) {
	if report == nil {
		report = func(int, string) {}
	}

	report(0, "scanning existing artifacts")
	index, err := BuildDedupIndex(ctx, s.store, s.extractor, entity, s.logger)
	if err != nil {
		return SyncResult{}, err
	}

	raw, err := s.fetcher.Fetch(ctx, entity)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch source for %s: %w", entity.ID, err)
	}

	candidates, err := s.resolver.Resolve(ctx, entity, raw)
	if err != nil {
		return SyncResult{}, fmt.Errorf("resolve candidates for %s: %w", entity.ID, err)
	}
	if len(candidates) == 0 {
		s.logger.Info("no candidates for entity", zap.String("entity_id", entity.ID))
		report(100, "nothing to sync")
		return SyncResult{}, nil
	}

	var result SyncResult
	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sync %s interrupted: %w", entity.ID, err)
		}
		percent := (i * 100) / len(candidates)
		if _, synced := index[cand.Key]; synced {
			result.Skipped++
			s.logger.Info("candidate already synced",
				zap.String("entity_id", entity.ID),
				zap.String("key", string(cand.Key)),
			)
			report(percent, fmt.Sprintf("skipping %s (already synced)", cand.Key))
			continue
		}

		report(percent, fmt.Sprintf("processing %s %s", cand.Format, cand.Key))
		if err := s.processor.Process(ctx, entity, cand); err != nil {
			result.Failed++
			s.logger.Error("candidate processing failed",
				zap.String("entity_id", entity.ID),
				zap.String("key", string(cand.Key)),
				zap.String("format", cand.Format),
				zap.Error(err),
			)
			continue
		}
		result.Processed++
	}

	report(100, fmt.Sprintf("synced %d, skipped %d, failed %d",
		result.Processed, result.Skipped, result.Failed))
	return result, nil
}
