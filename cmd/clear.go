package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/dataset"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached tables",
	Long: `Clear drops cached tables, either one source with --source or
everything. The cache lives in process memory, so this mainly matters
for long-running scripted use.

Examples:
  tabiq clear
  tabiq clear --source sales.csv`,
	RunE: runClear,
}

var clearSource string

func init() {
	clearCmd.Flags().StringVar(&clearSource, "source", "", "Only drop the cache entry for this file")
}

func runClear(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	store := dataset.NewStore(appCfg.Cache)
	defer store.Close()

	if clearSource != "" {
		store.Cache().Invalidate(clearSource)
		fmt.Fprintf(w, "Dropped cache entry for %s.\n", clearSource)

		return nil
	}

	store.Cache().Clear()
	fmt.Fprintln(w, "Cache cleared.")

	return nil
}
