package engine

import (
	"fmt"
	"strings"

	"github.com/tabiq-dev/tabiq/internal/lang"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// Issue is one problem validation found with a query
type Issue struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Validation reports whether a query could run against the bound
// inputs. Nothing is executed to produce it.
type Validation struct {
	Valid       bool           `json:"valid"`
	Intent      lang.Intent    `json:"intent"`
	Entities    lang.EntitySet `json:"entities"`
	Issues      []Issue        `json:"issues,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Validate checks a query against the bound inputs: referenced columns
// must exist, the intent must resolve, and advanced classes need their
// prerequisites in place (a second table and a shared key for joins, a
// time column for time series).
func Validate(query string, inputs []table.Named) *Validation {
	cols := allColumns(inputs)
	entities := lang.Extract(query, cols)
	intent := lang.ClassifyIntent(query)

	v := &Validation{
		Intent:   intent,
		Entities: entities,
	}

	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}

	for _, col := range entities.Columns {
		if !known[col] {
			v.issue("schema_mismatch", fmt.Sprintf("Column '%s' not found in dataset", col))
		}
	}

	if intent == lang.IntentUnknown {
		v.issue("intent_unresolved", "Query intent is unclear. Try using more specific keywords.")
	}

	if intent == lang.IntentFilter && len(entities.Columns) == 0 {
		v.issue("validation", "Filter queries need column names")
	}

	if intent == lang.IntentAggregate && len(entities.Columns) == 0 {
		v.issue("validation", "Aggregation queries need column names")
	}

	if adv, ok := lang.ClassifyAdvancedIntent(query); ok {
		switch adv {
		case lang.AdvancedMultiTableJoin:
			if len(inputs) < 2 {
				v.issue("insufficient_inputs", "Join queries need at least two tables")
			} else if det := table.DetectJoinKeys(inputs); det.Key == "" && len(det.Common) == 0 {
				v.issue("schema_mismatch", "No shared join key across the tables")
			}
		case lang.AdvancedTimeSeries:
			if len(inputs) > 0 {
				if _, ok := lang.DetectDateColumn(inputs[0].Table, query); !ok {
					v.issue("schema_mismatch", "No date or time column found for time-series analysis")
				}
			}
		}
	}

	v.Valid = len(v.Issues) == 0

	if !v.Valid {
		v.Suggestions = []string{
			"Be more specific about which columns to use",
			"Use clear keywords like 'filter', 'count', 'average', etc.",
		}

		if len(cols) > 0 {
			v.Suggestions = append(v.Suggestions, availableColumnsHint(cols))
		}
	}

	return v
}

func (v *Validation) issue(kind, message string) {
	v.Issues = append(v.Issues, Issue{Type: kind, Message: message})
}

func availableColumnsHint(cols []string) string {
	shown := cols
	suffix := ""

	if len(shown) > 5 {
		shown = shown[:5]
		suffix = "..."
	}

	return fmt.Sprintf("Available columns: %s%s", strings.Join(shown, ", "), suffix)
}
