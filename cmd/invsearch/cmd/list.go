package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/restocker/invsearch/internal/output"
)

func newListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every catalog item",
		Long:  "List all inventory items in the catalog, ordered by ID.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			items, err := a.store.ListItems(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			output.New(os.Stdout).Items(items)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit items as JSON")
	return cmd
}
