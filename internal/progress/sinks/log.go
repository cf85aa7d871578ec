package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/progress"
)

// LogSink emits structured logs for progress streams. It is the headless
// replacement for the per-entity progress bars the desktop flow had.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("entity_id", evt.EntityID),
			zap.Int("percent", evt.Percent),
			zap.Int("processed", evt.Processed),
			zap.Int("skipped", evt.Skipped),
			zap.Int("failed", evt.Failed),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
