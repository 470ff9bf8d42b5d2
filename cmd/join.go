package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/table"
)

var joinCmd = &cobra.Command{
	Use:   "join <left> <right> [more...] <query>",
	Short: "Join data files the way the question describes",
	Long: `Join matches rows across data files on an automatically detected
shared key and answers the question over the combined rows. The query
runs as a background job under the job row limit, reporting progress
while it works.

Examples:
  tabiq join orders.csv customers.csv "orders with customer names"
  tabiq join users.csv events.json "which users triggered alerts"`,
	Args: cobra.MinimumNArgs(3),
	RunE: runJoin,
}

var joinSession string

func init() {
	joinCmd.Flags().StringVar(&joinSession, "session", "default", "History session to record the query under")
}

func runJoin(cmd *cobra.Command, args []string) error {
	eng, gate, err := buildEngine()
	if err != nil {
		return err
	}

	query := args[len(args)-1]

	return runAdvanced(cmd, gate, advancedQuery{
		kind:    "join",
		session: joinSession,
		paths:   args[:len(args)-1],
		run: func(ctx context.Context, inputs []table.Named, report engine.Progress) *engine.Response {
			return eng.Join(ctx, query, inputs, report)
		},
	})
}
