// Package format shapes execution results for presentation: row-limited
// payloads with full-result descriptors, result summaries, and the
// intent-keyed explanation strings.
package format

import (
	"fmt"
	"time"

	"github.com/tabiq-dev/tabiq/internal/lang"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// Row caps per entry point. Interactive queries truncate early;
// background jobs may carry more rows back.
const (
	DefaultRowLimit    = 100
	DefaultJobRowLimit = 1000
)

// ColumnDesc describes one column of the full result
type ColumnDesc struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Payload is the row-limited view of a result. Columns and TotalRows
// always describe the full result, not the truncated slice.
type Payload struct {
	Columns   []ColumnDesc     `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	TotalRows int              `json:"total_rows"`
	Truncated bool             `json:"truncated,omitempty"`
}

// FromTable builds the payload for a tabular result, keeping at most
// limit rows.
func FromTable(t *table.Table, limit int) Payload {
	if limit <= 0 {
		limit = DefaultRowLimit
	}

	total := t.NumRows()

	n := total
	if n > limit {
		n = limit
	}

	cols := make([]ColumnDesc, 0, t.NumCols())
	for _, cs := range table.SchemaOf(t).Columns {
		cols = append(cols, ColumnDesc{Name: cs.Name, Type: cs.Type})
	}

	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, t.RowMap(i))
	}

	return Payload{
		Columns:   cols,
		Rows:      rows,
		TotalRows: total,
		Truncated: total > limit,
	}
}

// FromScalar wraps a bare value as a synthetic one-cell payload
func FromScalar(v any) Payload {
	return Payload{
		Columns:   []ColumnDesc{{Name: "result", Type: scalarType(v)}},
		Rows:      []map[string]any{{"result": v}},
		TotalRows: 1,
	}
}

func scalarType(v any) string {
	switch v.(type) {
	case float64:
		return string(table.TypeNumeric)
	case bool:
		return string(table.TypeBoolean)
	case time.Time:
		return string(table.TypeTemporal)
	default:
		return string(table.TypeText)
	}
}

// TabularSummary is the short result description for row sets
func TabularSummary(totalRows int) string {
	return fmt.Sprintf("Found %d rows", totalRows)
}

// ScalarSummary is the short result description for single values
func ScalarSummary(v any) string {
	return fmt.Sprintf("Result: %s", table.FormatValue(v))
}

func cellText(v any) string {
	return table.FormatValue(v)
}

// Explanation templates per intent. Intents without one share the
// generic form.
var explanations = map[lang.Intent]string{
	lang.IntentFilter:     "I filtered the data based on your criteria: '%s'. %s",
	lang.IntentAggregate:  "I performed aggregation on the data: '%s'. %s",
	lang.IntentSort:       "I sorted the data as requested: '%s'. %s",
	lang.IntentVisualize:  "I prepared the data for visualization: '%s'. %s",
	lang.IntentStatistics: "I calculated the requested statistics: '%s'. %s",
}

// Explain narrates what was done for the query, ending with the result
// summary.
func Explain(intent lang.Intent, query, summary string) string {
	if intent == lang.IntentSummarize {
		return fmt.Sprintf("Here's a summary of your data: %s", summary)
	}

	tpl, ok := explanations[intent]
	if !ok {
		tpl = "I processed your query: '%s'. %s"
	}

	return fmt.Sprintf(tpl, query, summary)
}
