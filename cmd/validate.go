package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/dataset"
	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/format"
)

var validateCmd = &cobra.Command{
	Use:   "validate <source>... <query>",
	Short: "Check whether a query can run against data files",
	Long: `Validate resolves the query's intent and entities against the files'
schemas without executing anything. It reports missing columns,
unresolved intents, and unmet prerequisites such as a join needing a
second table or a time series needing a temporal column. The exit code
is non-zero when the query would not run.

Examples:
  tabiq validate sales.csv "average amount by region"
  tabiq validate orders.csv customers.csv "join orders with customers"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	paths, query := args[:len(args)-1], args[len(args)-1]

	store := dataset.NewStore(appCfg.Cache)
	defer store.Close()

	inputs, err := store.LoadAll(ctx, paths)
	if err != nil {
		return err
	}

	v := engine.Validate(query, inputs)

	if flagFormat == format.StyleJSON {
		if err := writeJSON(w, v); err != nil {
			return err
		}
	} else if v.Valid {
		fmt.Fprintf(w, "OK: resolves to a %s query\n", v.Intent)
	} else {
		for _, issue := range v.Issues {
			fmt.Fprintf(w, "%s: %s\n", issue.Type, issue.Message)
		}

		for _, s := range v.Suggestions {
			fmt.Fprintf(w, "try: %s\n", s)
		}
	}

	if !v.Valid {
		return errors.New(errors.ErrTypeValidation, "query would not run against these inputs")
	}

	return nil
}
