package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/dataset"
	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/format"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <source> <query>",
	Short: "Suggest a cheaper way to run a query",
	Long: `Optimize inspects a query against the data file it would run over and
reports recommendations driven by the dataset's size and shape, plus a
rewritten program that applies them. Nothing is executed.

Examples:
  tabiq optimize big.csv "average amount by region"
  tabiq optimize --format json events.json "errors over time"`,
	Args: cobra.ExactArgs(2),
	RunE: runOptimize,
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	eng, err := engine.FromConfig(appCfg)
	if err != nil {
		return err
	}

	store := dataset.NewStore(appCfg.Cache)
	defer store.Close()

	input, err := loadNamed(ctx, store, args[0])
	if err != nil {
		return err
	}

	advice, err := eng.Advise(ctx, args[1], input)
	if err != nil {
		return err
	}

	if flagFormat == format.StyleJSON {
		return writeJSON(w, advice)
	}

	fmt.Fprintf(w, "Dataset: %.2f MB, %d rows, %d columns\n\n",
		advice.Stats.SizeMB, advice.Stats.Rows, advice.Stats.Columns)

	if len(advice.Recommendations) == 0 {
		fmt.Fprintln(w, "No optimizations suggested, the query already fits this dataset.")
	}

	for i, rec := range advice.Recommendations {
		fmt.Fprintf(w, "%d. [%s] %s\n   %s\n", i+1, rec.Type, rec.Suggestion, rec.Reason)
	}

	if advice.Program != "" {
		fmt.Fprintf(w, "\nRewritten program (%s):\n%s\n", advice.Provenance, advice.Program)
	}

	return nil
}
