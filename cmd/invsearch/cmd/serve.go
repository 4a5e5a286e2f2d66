package cmd

import (
	"github.com/spf13/cobra"

	"github.com/restocker/invsearch/internal/ingest"
	"github.com/restocker/invsearch/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var withFeed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search over MCP on stdio",
		Long: `Run the MCP server on stdin/stdout, exposing the inventory_search and
inventory_stats tools. With --feed the change-feed consumer runs
alongside it, so new items become searchable while the server is up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if withFeed {
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
			}

			srv, err := mcp.NewServer(a.engine, a.logger)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&withFeed, "feed", true, "consume the change-feed spool while serving")
	return cmd
}
