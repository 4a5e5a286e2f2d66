// Package cmd provides the CLI commands for invsearch.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/restocker/invsearch/pkg/version"
)

var configPath string

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invsearch",
		Short: "Hybrid search over a live inventory catalog",
		Long: `invsearch indexes an inventory catalog both lexically and semantically
and serves ranked hybrid search over it: keyword matching on names,
vendors, and SKUs fused with cosine similarity over text embeddings.

Items arrive through a spool-directory change feed and stay searchable
by keyword even when the embedding provider is down.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("invsearch version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")

	cmd.AddCommand(
		newSearchCmd(),
		newListCmd(),
		newIngestCmd(),
		newStatsCmd(),
		newRepairCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the CLI with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		return err
	}
	return nil
}
