package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/dataset"
	"github.com/tabiq-dev/tabiq/internal/format"
	"github.com/tabiq-dev/tabiq/internal/table"
)

var schemaCmd = &cobra.Command{
	Use:   "schema <source>",
	Short: "Show the inferred schema of a data file",
	Long: `Schema loads a data file and prints each column with its inferred type
(numeric, categorical, temporal, boolean, or text) plus the row count.

Examples:
  tabiq schema sales.csv
  tabiq schema --format json events.ndjson`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	store := dataset.NewStore(appCfg.Cache)
	defer store.Close()

	t, err := store.Load(ctx, args[0])
	if err != nil {
		return err
	}

	schema := table.SchemaOf(t)

	if flagFormat == format.StyleJSON {
		return writeJSON(w, schema)
	}

	if flagFormat == format.StyleTable {
		fmt.Fprintf(w, "%s: %d rows\n\n", dataset.TableName(args[0]), schema.RowCount)
	}

	payload := format.Payload{
		Columns: []format.ColumnDesc{
			{Name: "column", Type: "text"},
			{Name: "type", Type: "text"},
		},
		Rows:      make([]map[string]any, 0, len(schema.Columns)),
		TotalRows: len(schema.Columns),
	}
	for _, col := range schema.Columns {
		payload.Rows = append(payload.Rows, map[string]any{"column": col.Name, "type": col.Type})
	}

	return format.Render(w, payload, flagFormat)
}
