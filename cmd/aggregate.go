package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/table"
)

var aggregateCmd = &cobra.Command{
	Use:     "aggregate <source> <query>",
	Aliases: []string{"agg"},
	Short:   "Run a grouped aggregation over a data file",
	Long: `Aggregate answers questions that group and reduce, such as sums,
averages, counts, minima, and maxima per category. The query runs as a
background job under the job row limit.

Examples:
  tabiq aggregate sales.csv "total amount by region"
  tabiq aggregate events.json "count errors by service"`,
	Args: cobra.ExactArgs(2),
	RunE: runAggregate,
}

var aggregateSession string

func init() {
	aggregateCmd.Flags().StringVar(&aggregateSession, "session", "default", "History session to record the query under")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	eng, gate, err := buildEngine()
	if err != nil {
		return err
	}

	query := args[1]

	return runAdvanced(cmd, gate, advancedQuery{
		kind:    "aggregate",
		session: aggregateSession,
		paths:   args[:1],
		run: func(ctx context.Context, inputs []table.Named, report engine.Progress) *engine.Response {
			return eng.Aggregate(ctx, query, inputs, report)
		},
	})
}
