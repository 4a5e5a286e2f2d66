package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/restocker/invsearch/internal/output"
)

func newRepairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Rebuild indexes from the catalog store",
		Long: `Rebuild the lexical and vector indexes from the catalog store,
re-embedding items whose embeddings are missing or stale and pruning
index entries for items no longer in the store. Run this after a crash
or when search results look inconsistent with the catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			// openApp already ran a rebuild; run Repair explicitly so stale
			// embeddings get a fresh attempt too.
			if err := a.pipeline.Repair(cmd.Context()); err != nil {
				return err
			}
			if err := a.pipeline.RetryStale(cmd.Context()); err != nil {
				return err
			}

			w := output.New(os.Stdout)
			if stale := a.pipeline.StaleIDs(); len(stale) > 0 {
				w.Error(fmt.Sprintf("%d item(s) still missing embeddings: %v", len(stale), stale))
			}
			if inconsistent := a.pipeline.InconsistentIDs(); len(inconsistent) > 0 {
				w.Error(fmt.Sprintf("%d item(s) still inconsistent: %v", len(inconsistent), inconsistent))
			}
			fmt.Fprintln(os.Stdout, "repair complete")
			return nil
		},
	}
	return cmd
}
