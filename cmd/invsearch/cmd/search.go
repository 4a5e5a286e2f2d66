package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/restocker/invsearch/internal/output"
	"github.com/restocker/invsearch/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		mode   string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the inventory catalog",
		Long: `Search the catalog with the given query. Modes:

  keyword   lexical token matching only
  semantic  embedding cosine similarity only
  hybrid    weighted fusion of both (default)

When the embedding provider is unavailable, semantic and hybrid
searches degrade to keyword results instead of failing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.Search.DefaultLimit
			}

			resp, err := a.engine.Search(cmd.Context(), search.Request{
				Query: args[0],
				Mode:  mode,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			output.New(os.Stdout).SearchResponse(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "search mode: keyword, semantic, or hybrid")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit results as JSON")
	return cmd
}
