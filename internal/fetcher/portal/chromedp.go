// Package portal drives the report web application with a headless browser
// to request fresh per-entity reports before the mailbox phase.
package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
)

// Config controls the portal session.
type Config struct {
	LoginURL    string        `mapstructure:"login_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
}

// Session logs into the portal and requests report generation per entity.
// It implements batch.ItemProcessor so a request run can go through the same
// orchestrator as the other phases.
type Session struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger

	loginOnce sync.Once
	loginErr  error
}

// New creates a portal session backed by chromedp.
func New(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.LoginURL == "" {
		return nil, fmt.Errorf("portal login url is required")
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Session{
		cfg:         cfg,
		limiter:     make(chan struct{}, cfg.MaxParallel),
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (s *Session) Close() {
	s.allocCancel()
}

// Process implements batch.ItemProcessor: it opens the entity's report page
// and submits the generation request identified by the candidate locator.
func (s *Session) Process(ctx context.Context, entity batch.Entity, cand batch.Candidate) error {
	select {
	case s.limiter <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("portal slot wait: %w", ctx.Err())
	}
	defer func() { <-s.limiter }()

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavTimeout)
	defer cancel()

	actions := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(1366, 768, 1.0, false),
		chromedp.Navigate(s.cfg.LoginURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.SendKeys(`input[name="username"]`, s.cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, s.cfg.Password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Navigate(cand.Locator),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Click(`button#request-report`, chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("request report for %s: %w", entity.ID, err)
	}
	s.logger.Info("report requested",
		zap.String("entity_id", entity.ID),
		zap.String("key", string(cand.Key)),
	)
	return nil
}
