package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Starts the HTTP server: health and metrics endpoints, a trigger endpoint
that starts a pipeline run, and run status lookups backed by the run history
database when one is configured.`,
		RunE: runServeCommand,
	}
}

// pipelineRunner adapts the services to the api.Runner contract.
type pipelineRunner struct {
	svcs *services
}

func (r *pipelineRunner) Busy() bool {
	return r.svcs.pipeline.Busy()
}

func (r *pipelineRunner) Run(ctx context.Context) error {
	_, err := r.svcs.runPipeline(ctx)
	return err
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := buildServices(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer svcs.Close(context.Background())

	server := api.NewServer(&pipelineRunner{svcs: svcs}, svcs.runs, svcs.registry, svcs.logger.Named("api"))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", svcs.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		svcs.logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		svcs.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
