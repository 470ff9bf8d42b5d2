package engine

import (
	"fmt"

	"github.com/tabiq-dev/tabiq/internal/lang"
	"github.com/tabiq-dev/tabiq/internal/table"
)

const maxSuggestions = 8

// Suggestion proposes a query the dataset can answer
type Suggestion struct {
	Title       string      `json:"suggestion"`
	Intent      lang.Intent `json:"intent"`
	Description string      `json:"description"`
	Example     string      `json:"example_query"`
}

// Suggest proposes starter queries from the table's shape: general
// exploration first, then suggestions keyed to the first numeric,
// categorical, and temporal columns. Capped at eight.
func Suggest(t *table.Table) []Suggestion {
	suggestions := []Suggestion{
		{
			Title:       "Get data summary",
			Intent:      lang.IntentSummarize,
			Description: "Show basic statistics and overview of the dataset",
			Example:     "Show me a summary of this data",
		},
		{
			Title:       "Preview data",
			Intent:      lang.IntentFilter,
			Description: "Display the first few rows of data",
			Example:     "Show me the first 10 rows",
		},
	}

	numeric := t.NumericColumns()
	categorical := textColumns(t)
	temporal := t.TemporalColumns()

	if len(numeric) > 0 {
		col := numeric[0]
		suggestions = append(suggestions,
			Suggestion{
				Title:       fmt.Sprintf("Analyze %s", col),
				Intent:      lang.IntentStatistics,
				Description: fmt.Sprintf("Get statistics for the %s column", col),
				Example:     fmt.Sprintf("What are the statistics for %s?", col),
			},
			Suggestion{
				Title:       fmt.Sprintf("Filter by %s", col),
				Intent:      lang.IntentFilter,
				Description: fmt.Sprintf("Filter data based on %s values", col),
				Example:     fmt.Sprintf("Show me rows where %s is greater than 100", col),
			},
		)
	}

	if len(categorical) > 0 {
		col := categorical[0]
		suggestions = append(suggestions,
			Suggestion{
				Title:       fmt.Sprintf("Count by %s", col),
				Intent:      lang.IntentAggregate,
				Description: fmt.Sprintf("Count occurrences of each %s value", col),
				Example:     fmt.Sprintf("How many of each %s are there?", col),
			},
			Suggestion{
				Title:       fmt.Sprintf("Group by %s", col),
				Intent:      lang.IntentAggregate,
				Description: fmt.Sprintf("Group data by %s categories", col),
				Example:     fmt.Sprintf("Group the data by %s", col),
			},
		)
	}

	if len(temporal) > 0 && len(numeric) > 0 {
		suggestions = append(suggestions, Suggestion{
			Title:       fmt.Sprintf("Trend of %s over %s", numeric[0], temporal[0]),
			Intent:      lang.IntentVisualize,
			Description: fmt.Sprintf("Track how %s moves across %s", numeric[0], temporal[0]),
			Example:     fmt.Sprintf("Show me the trend of %s over time", numeric[0]),
		})
	}

	if t.NumCols() >= 2 {
		col1, col2 := t.Column(0).Name, t.Column(1).Name
		suggestions = append(suggestions, Suggestion{
			Title:       fmt.Sprintf("Compare %s and %s", col1, col2),
			Intent:      lang.IntentStatistics,
			Description: fmt.Sprintf("Analyze relationship between %s and %s", col1, col2),
			Example:     fmt.Sprintf("Show me the relationship between %s and %s", col1, col2),
		})
	}

	if len(numeric) > 0 {
		col := numeric[0]
		suggestions = append(suggestions, Suggestion{
			Title:       fmt.Sprintf("Top values by %s", col),
			Intent:      lang.IntentSort,
			Description: fmt.Sprintf("Show highest %s values", col),
			Example:     fmt.Sprintf("Show me the top 10 rows sorted by %s", col),
		})
	}

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	return suggestions
}

func textColumns(t *table.Table) []string {
	var cols []string

	for i := 0; i < t.NumCols(); i++ {
		c := t.Column(i)
		if c.Type == table.TypeCategorical || c.Type == table.TypeText {
			cols = append(cols, c.Name)
		}
	}

	return cols
}
