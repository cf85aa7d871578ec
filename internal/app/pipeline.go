// Package app composes the sync phases into one pipeline and is the unit the
// CLI and the HTTP trigger both drive.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
	"github.com/fleetops/reportsync/internal/processor"
	"github.com/fleetops/reportsync/internal/progress"
	"github.com/fleetops/reportsync/internal/publisher"
	"github.com/fleetops/reportsync/internal/report"
	"github.com/fleetops/reportsync/internal/storage/memory"
)

// Phase names, in execution order.
const (
	PhaseRequest  = "request"
	PhaseDownload = "download"
	PhaseSummary  = "summary"
	PhaseUpload   = "upload"
)

// Deps carries the pipeline's collaborators. Source, Resolver, Downloader and
// Local are required; Remote enables the upload phase, Requester the request
// phase, Publisher the completion notification.
type Deps struct {
	Logger      *zap.Logger
	Emitter     progress.Emitter
	Clock       batch.Clock
	IDs         batch.IDGenerator
	Concurrency int

	Source     batch.SourceFetcher
	Resolver   batch.CandidateResolver
	Downloader batch.ItemProcessor
	Local      batch.ArtifactStore

	Remote          batch.ArtifactStore
	Requester       batch.ItemProcessor
	RequestResolver batch.CandidateResolver

	Publisher publisher.Publisher
	Topic     string
}

// PhaseReport is one phase's BatchRun outcome.
type PhaseReport struct {
	Phase  string
	Report batch.RunReport
}

type phase struct {
	name         string
	orchestrator *batch.Orchestrator
}

// Pipeline runs the sync phases back to back over one roster. The whole
// pipeline is single-flight: a trigger while any phase is running returns
// ErrRunInProgress.
type Pipeline struct {
	phases []phase
	guard  batch.Guard

	pub    publisher.Publisher
	topic  string
	clock  batch.Clock
	logger *zap.Logger
}

// New wires the pipeline's phases from deps.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Emitter == nil:
		return nil, fmt.Errorf("progress emitter is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Source == nil:
		return nil, fmt.Errorf("source fetcher is required")
	case deps.Resolver == nil:
		return nil, fmt.Errorf("candidate resolver is required")
	case deps.Downloader == nil:
		return nil, fmt.Errorf("download processor is required")
	case deps.Local == nil:
		return nil, fmt.Errorf("local artifact store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	p := &Pipeline{
		pub:    deps.Publisher,
		topic:  deps.Topic,
		clock:  deps.Clock,
		logger: deps.Logger,
	}

	orchestrate := func(name string, s *batch.Syncer) error {
		o, err := batch.NewOrchestrator(s, deps.Emitter, deps.Clock, deps.IDs, nil, deps.Concurrency, deps.Logger.Named(name))
		if err != nil {
			return fmt.Errorf("%s phase: %w", name, err)
		}
		p.phases = append(p.phases, phase{name: name, orchestrator: o})
		return nil
	}

	if deps.Requester != nil {
		if deps.RequestResolver == nil {
			return nil, fmt.Errorf("request resolver is required when a requester is set")
		}
		// The scratch store never receives artifacts, so the dedup index is
		// always empty and every run re-requests.
		s, err := batch.NewSyncer(batch.SourceFunc(nilSource), deps.RequestResolver, deps.Requester,
			memory.New(), processor.NameKeyExtractor{}, deps.Logger.Named(PhaseRequest))
		if err != nil {
			return nil, fmt.Errorf("request phase: %w", err)
		}
		if err := orchestrate(PhaseRequest, s); err != nil {
			return nil, err
		}
	}

	download, err := batch.NewSyncer(deps.Source, deps.Resolver, deps.Downloader,
		deps.Local, report.CSVKeyExtractor{}, deps.Logger.Named(PhaseDownload))
	if err != nil {
		return nil, fmt.Errorf("download phase: %w", err)
	}
	if err := orchestrate(PhaseDownload, download); err != nil {
		return nil, err
	}

	summaryLogger := deps.Logger.Named(PhaseSummary)
	summary, err := batch.NewSyncer(
		batch.SourceFunc(nilSource),
		report.NewSummaryResolver(deps.Local, report.CSVKeyExtractor{}, summaryLogger),
		report.NewSummaryProcessor(deps.Local, summaryLogger),
		deps.Local,
		report.SummaryKeyExtractor{},
		summaryLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("summary phase: %w", err)
	}
	if err := orchestrate(PhaseSummary, summary); err != nil {
		return nil, err
	}

	if deps.Remote != nil {
		up, err := processor.NewUpload(deps.Local, deps.Remote, deps.Logger.Named(PhaseUpload))
		if err != nil {
			return nil, fmt.Errorf("upload phase: %w", err)
		}
		s, err := batch.NewSyncer(batch.SourceFunc(nilSource), processor.NewUploadResolver(deps.Local), up,
			deps.Remote, processor.NameKeyExtractor{}, deps.Logger.Named(PhaseUpload))
		if err != nil {
			return nil, fmt.Errorf("upload phase: %w", err)
		}
		if err := orchestrate(PhaseUpload, s); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func nilSource(context.Context, batch.Entity) ([]byte, error) { return nil, nil }

// Busy reports whether a pipeline run is currently active. The answer can be
// stale; Run remains the authority.
func (p *Pipeline) Busy() bool {
	return p.guard.Busy()
}

// Run executes every configured phase in order over entities. A second Run
// while one is active returns ErrRunInProgress without side effects. A phase
// whose orchestration fails outright aborts the remaining phases; per-entity
// failures inside a phase do not.
func (p *Pipeline) Run(ctx context.Context, entities []batch.Entity) ([]PhaseReport, error) {
	if !p.guard.TryAcquire() {
		p.logger.Warn("pipeline run rejected: another run is in progress")
		return nil, batch.ErrRunInProgress
	}
	defer p.guard.Release()

	started := p.clock.Now()
	reports := make([]PhaseReport, 0, len(p.phases))
	for _, ph := range p.phases {
		rr, err := ph.orchestrator.Run(ctx, entities)
		if err != nil {
			return reports, fmt.Errorf("%s phase: %w", ph.name, err)
		}
		reports = append(reports, PhaseReport{Phase: ph.name, Report: rr})
	}

	p.publishCompletion(ctx, started, reports)
	return reports, nil
}

type completionPayload struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DurMillis  int64          `json:"dur_millis"`
	Phases     []phasePayload `json:"phases"`
}

type phasePayload struct {
	Phase     string `json:"phase"`
	RunID     string `json:"run_id"`
	Entities  int    `json:"entities"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// publishCompletion notifies the configured topic; failures are logged, never
// fatal, because the run itself already succeeded.
func (p *Pipeline) publishCompletion(ctx context.Context, started time.Time, reports []PhaseReport) {
	if p.pub == nil || p.topic == "" {
		return
	}
	finished := p.clock.Now()
	payload := completionPayload{
		StartedAt:  started,
		FinishedAt: finished,
		DurMillis:  finished.Sub(started).Milliseconds(),
	}
	for _, pr := range reports {
		totals := pr.Report.Totals()
		payload.Phases = append(payload.Phases, phasePayload{
			Phase:     pr.Phase,
			RunID:     pr.Report.RunID,
			Entities:  len(pr.Report.Outcomes),
			Processed: totals.Processed,
			Skipped:   totals.Skipped,
			Failed:    totals.Failed,
		})
	}
	id, err := p.pub.Publish(ctx, p.topic, payload)
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("completion publish failed", zap.Error(err))
		return
	}
	if err == nil {
		p.logger.Info("completion published",
			zap.String("topic", p.topic),
			zap.String("message_id", id),
		)
	}
}
