package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/table"
)

var timeseriesCmd = &cobra.Command{
	Use:     "timeseries <source> <query>",
	Aliases: []string{"ts"},
	Short:   "Analyze a data file over time",
	Long: `Timeseries answers questions about change over time: trends, growth,
per-period aggregates, and windowed comparisons. The file needs a
temporal column; the query runs as a background job under the job row
limit.

Examples:
  tabiq timeseries sales.csv "revenue trend by month"
  tabiq timeseries metrics.csv "daily average latency over the last quarter"`,
	Args: cobra.ExactArgs(2),
	RunE: runTimeseries,
}

var timeseriesSession string

func init() {
	timeseriesCmd.Flags().StringVar(&timeseriesSession, "session", "default", "History session to record the query under")
}

func runTimeseries(cmd *cobra.Command, args []string) error {
	eng, gate, err := buildEngine()
	if err != nil {
		return err
	}

	query := args[1]

	return runAdvanced(cmd, gate, advancedQuery{
		kind:    "timeseries",
		session: timeseriesSession,
		paths:   args[:1],
		run: func(ctx context.Context, inputs []table.Named, report engine.Progress) *engine.Response {
			return eng.TimeSeries(ctx, query, inputs, report)
		},
	})
}
