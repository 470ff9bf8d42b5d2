package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/dataset"
	"github.com/tabiq-dev/tabiq/internal/engine"
)

var askCmd = &cobra.Command{
	Use:   "ask <source>... <query>",
	Short: "Answer a natural language question about data files",
	Long: `Ask runs a natural language query against the given data files and
prints the result. The last argument is the query; everything before it
is a data source (CSV, TSV, JSON, NDJSON, or Parquet). With two or more
sources the engine joins them on an automatically detected shared key
when the question calls for it.

Examples:
  tabiq ask sales.csv "total revenue by region"
  tabiq ask sales.csv "show products with sales > 1000"
  tabiq ask orders.csv customers.csv "join orders with customer names"
  tabiq ask --limit 20 events.json "most common error codes"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

var (
	askLimit   int
	askSession string
)

func init() {
	askCmd.Flags().IntVar(&askLimit, "limit", 0, "Maximum result rows to display (0 uses the configured default)")
	askCmd.Flags().StringVar(&askSession, "session", "default", "History session to record the query under")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	paths, query := args[:len(args)-1], args[len(args)-1]

	if askLimit > 0 {
		appCfg.Exec.RowLimit = askLimit
	}

	eng, err := engine.FromConfig(appCfg)
	if err != nil {
		return err
	}

	store := dataset.NewStore(appCfg.Cache)
	defer store.Close()

	inputs, err := store.LoadAll(ctx, paths)
	if err != nil {
		return err
	}

	resp := eng.Ask(ctx, query, inputs, nil)

	hist := openHistory()
	defer hist.Close()
	record(ctx, hist, askSession, resp)

	return emitResponse(cmd.OutOrStdout(), resp)
}
