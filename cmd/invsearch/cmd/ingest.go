package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/restocker/invsearch/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Consume the change-feed spool directory",
		Long: `Watch the spool directory for item change events (JSON files) and
apply them to the catalog and indexes. Events already in the spool are
replayed first; processing continues until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			feed, err := ingest.NewFeed(a.pipeline, ingest.FeedConfig{
				Dir:            a.cfg.Paths.SpoolDir,
				Workers:        a.cfg.Ingest.Workers,
				DebounceWindow: a.cfg.Ingest.DebounceWindow.Std(),
			}, a.logger)
			if err != nil {
				return err
			}
			defer feed.Close()

			if err := feed.Start(ctx); err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "watching %s (ctrl-c to stop)\n", a.cfg.Paths.SpoolDir)
			<-ctx.Done()
			return nil
		},
	}
	return cmd
}
