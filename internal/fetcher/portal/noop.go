package portal

import (
	"context"

	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
)

// Noop satisfies batch.ItemProcessor without a browser, for environments
// where the portal phase is disabled.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a Noop processor.
func NewNoop(logger *zap.Logger) *Noop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Noop{logger: logger}
}

// Process logs and succeeds.
func (n *Noop) Process(_ context.Context, entity batch.Entity, _ batch.Candidate) error {
	n.logger.Debug("portal disabled; skipping report request",
		zap.String("entity_id", entity.ID))
	return nil
}
