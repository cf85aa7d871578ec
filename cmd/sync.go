package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run the sync pipeline once over the roster",
		Long: `Executes every configured phase in order: portal request (when enabled),
report download from the mailbox, summary generation, and upload to remote
storage. Content synced by earlier runs is skipped.`,
		RunE: runSyncCommand,
	}
}

func runSyncCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	svcs, err := buildServices(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer svcs.Close(ctx)

	reports, err := svcs.runPipeline(ctx)
	if err != nil {
		var cfgErr *batch.ConfigError
		switch {
		case errors.Is(err, batch.ErrRunInProgress):
			return fmt.Errorf("another run is already in progress")
		case errors.As(err, &cfgErr):
			return fmt.Errorf("configuration: %s", cfgErr.Reason)
		}
		return err
	}

	for _, pr := range reports {
		totals := pr.Report.Totals()
		svcs.logger.Info("phase finished",
			zap.String("phase", pr.Phase),
			zap.String("run_id", pr.Report.RunID),
			zap.Int("processed", totals.Processed),
			zap.Int("skipped", totals.Skipped),
			zap.Int("failed", totals.Failed),
		)
	}
	return nil
}
