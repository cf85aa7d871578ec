package cmd

import (
	"context"
	"fmt"
	"net/http"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/app"
	"github.com/fleetops/reportsync/internal/batch"
	"github.com/fleetops/reportsync/internal/clock/system"
	"github.com/fleetops/reportsync/internal/config"
	"github.com/fleetops/reportsync/internal/entity"
	"github.com/fleetops/reportsync/internal/fetcher/portal"
	"github.com/fleetops/reportsync/internal/id/uuid"
	"github.com/fleetops/reportsync/internal/logging"
	"github.com/fleetops/reportsync/internal/mailbox"
	"github.com/fleetops/reportsync/internal/processor"
	"github.com/fleetops/reportsync/internal/progress"
	"github.com/fleetops/reportsync/internal/progress/sinks"
	pspub "github.com/fleetops/reportsync/internal/publisher/pubsub"
	"github.com/fleetops/reportsync/internal/report"
	"github.com/fleetops/reportsync/internal/storage/gcs"
	"github.com/fleetops/reportsync/internal/storage/local"
	"github.com/fleetops/reportsync/internal/storage/postgres"
	"github.com/fleetops/reportsync/internal/store"
)

// services holds everything a command needs, built once from config and torn
// down in reverse by Close.
type services struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	hub      *progress.Hub
	pipeline *app.Pipeline
	runs     store.RunRepository

	portalSession *portal.Session
	gcsClient     *gstorage.Client
	pubsubClient  *pubsub.Client
	runStore      *postgres.RunStore
}

// buildServices wires the full stack: logger, metrics registry, progress hub
// and sinks, stores, pipeline phases. Optional subsystems (GCS, Postgres,
// Pub/Sub, portal) are wired only when configured.
func buildServices(ctx context.Context, cfgPath string) (*services, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	s := &services{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.Close(ctx)
		}
	}()

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(s.registry)
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	hubSinks := []progress.Sink{
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	}

	if cfg.DB.DSN != "" {
		s.runStore, err = postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
			MinConns: int32(cfg.DB.MinOpenConns),
		})
		if err != nil {
			return nil, err
		}
		s.runs = s.runStore
		hubSinks = append(hubSinks, sinks.NewStoreSink(s.runStore, logger.Named("runstore")))
	}

	s.hub = progress.NewHub(progress.Config{Logger: logger.Named("hub")}, hubSinks...)

	localStore, err := local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
	if err != nil {
		return nil, err
	}

	var remote batch.ArtifactStore
	if cfg.Storage.GCSBucket != "" {
		s.gcsClient, err = gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		remote, err = gcs.New(s.gcsClient, gcs.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return nil, err
		}
	}

	source, err := mailbox.New(mailbox.Config{
		Addr:          cfg.Mailbox.Addr,
		Username:      cfg.Mailbox.Username,
		Password:      cfg.Mailbox.Password,
		Mailbox:       cfg.Mailbox.Mailbox,
		SubjectPrefix: cfg.Mailbox.SubjectPrefix,
		SinceDays:     cfg.Mailbox.SinceDays,
	}, logger.Named("mailbox"))
	if err != nil {
		return nil, err
	}

	downloader, err := processor.NewDownload(
		&http.Client{Timeout: cfg.DownloadTimeout()},
		localStore,
		logger.Named("download"),
	)
	if err != nil {
		return nil, err
	}

	clk := system.New()
	deps := app.Deps{
		Logger:      logger,
		Emitter:     s.hub,
		Clock:       clk,
		IDs:         uuid.NewGenerator(),
		Concurrency: cfg.Sync.Concurrency,
		Source:      source,
		Resolver:    report.NewTableResolver(logger.Named("resolver")),
		Downloader:  downloader,
		Local:       localStore,
		Remote:      remote,
	}

	if cfg.Portal.Enabled {
		s.portalSession, err = portal.New(portal.Config{
			LoginURL:    cfg.Portal.LoginURL,
			Username:    cfg.Portal.Username,
			Password:    cfg.Portal.Password,
			MaxParallel: cfg.Portal.MaxParallel,
			NavTimeout:  cfg.PortalNavTimeout(),
		}, logger.Named("portal"))
		if err != nil {
			return nil, err
		}
		deps.Requester = s.portalSession
		deps.RequestResolver, err = portal.NewRequestResolver(cfg.Portal.ReportURLTemplate, clk)
		if err != nil {
			return nil, err
		}
	}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		s.pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		deps.Publisher = pspub.New(s.pubsubClient)
		deps.Topic = cfg.PubSub.TopicName
	}

	s.pipeline, err = app.New(deps)
	if err != nil {
		return nil, err
	}

	ok = true
	return s, nil
}

// Close tears down the services; safe on a partially built struct.
func (s *services) Close(ctx context.Context) {
	if s.hub != nil {
		if err := s.hub.Close(ctx); err != nil {
			s.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if s.portalSession != nil {
		s.portalSession.Close()
	}
	if s.pubsubClient != nil {
		if err := s.pubsubClient.Close(); err != nil {
			s.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if s.gcsClient != nil {
		if err := s.gcsClient.Close(); err != nil {
			s.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if s.runStore != nil {
		s.runStore.Close()
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}

// runPipeline loads the roster and executes one full pipeline run.
func (s *services) runPipeline(ctx context.Context) ([]app.PhaseReport, error) {
	entities, err := entity.LoadRoster(s.cfg.Sync.RosterPath, s.logger)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Run(ctx, entities)
}
