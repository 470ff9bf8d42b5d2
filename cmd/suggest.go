package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/dataset"
	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/format"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <source>",
	Short: "Propose starter queries for a data file",
	Long: `Suggest inspects a file's schema and proposes queries worth asking:
general exploration first, then questions keyed to the numeric,
categorical, and temporal columns it finds.

Examples:
  tabiq suggest sales.csv
  tabiq suggest --format json events.ndjson`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	store := dataset.NewStore(appCfg.Cache)
	defer store.Close()

	t, err := store.Load(ctx, args[0])
	if err != nil {
		return err
	}

	suggestions := engine.Suggest(t)

	if flagFormat == format.StyleJSON {
		return writeJSON(w, suggestions)
	}

	payload := format.Payload{
		Columns: []format.ColumnDesc{
			{Name: "suggestion", Type: "text"},
			{Name: "intent", Type: "categorical"},
			{Name: "example", Type: "text"},
		},
		Rows:      make([]map[string]any, 0, len(suggestions)),
		TotalRows: len(suggestions),
	}
	for _, s := range suggestions {
		payload.Rows = append(payload.Rows, map[string]any{
			"suggestion": s.Title,
			"intent":     string(s.Intent),
			"example":    s.Example,
		})
	}

	return format.Render(w, payload, flagFormat)
}
