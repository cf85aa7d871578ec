// Package cmd defines the CLI commands for the reportsync executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reportsync",
		Short: "Incremental report sync pipeline",
		Long: `reportsync keeps a local artifact store in step with per-entity report
sources: it requests fresh reports, downloads the new ones, consolidates them
into summaries and mirrors everything to remote object storage, skipping
content that earlier runs already synced.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; env vars with prefix REPORTSYNC also apply)")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
