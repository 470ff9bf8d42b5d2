package lang

import (
	"strings"

	"github.com/tabiq-dev/tabiq/internal/table"
)

// AggSpec names one column and the aggregate functions to apply to it
type AggSpec struct {
	Column string
	Fns    []string
}

const (
	maxGroupColumns = 2
	maxAggColumns   = 3
	// Columns whose distinct-to-total ratio is below this are grouping
	// candidates even when numeric.
	groupCardinalityRatio = 0.1
)

// AggregationParams derives grouping columns and aggregate functions for
// a query. Grouping prefers columns the query mentions, falling back to
// low-cardinality candidates. Aggregates cover the first numeric columns
// with the function the query names, or sum, mean, and count when it
// names none.
func AggregationParams(query string, t *table.Table) ([]string, []AggSpec) {
	lower := strings.ToLower(query)

	var candidates []string

	for _, name := range t.ColumnNames() {
		switch t.ColumnType(name) {
		case table.TypeText, table.TypeCategorical:
			candidates = append(candidates, name)
		default:
			if lowCardinality(t, name) {
				candidates = append(candidates, name)
			}
		}
	}

	var mentioned []string

	for _, name := range t.ColumnNames() {
		if strings.Contains(lower, strings.ToLower(name)) {
			mentioned = append(mentioned, name)
		}
	}

	groupCols := candidates
	if len(mentioned) > 0 {
		groupCols = mentioned
	}

	if len(groupCols) > maxGroupColumns {
		groupCols = groupCols[:maxGroupColumns]
	}

	numeric := t.NumericColumns()
	if len(numeric) > maxAggColumns {
		numeric = numeric[:maxAggColumns]
	}

	var fns []string

	switch {
	case strings.Contains(lower, "sum"):
		fns = []string{"sum"}
	case strings.Contains(lower, "average"), strings.Contains(lower, "mean"):
		fns = []string{"mean"}
	case strings.Contains(lower, "count"):
		fns = []string{"count"}
	default:
		fns = []string{"sum", "mean", "count"}
	}

	specs := make([]AggSpec, 0, len(numeric))
	for _, col := range numeric {
		specs = append(specs, AggSpec{Column: col, Fns: fns})
	}

	return groupCols, specs
}

func lowCardinality(t *table.Table, name string) bool {
	col, ok := t.ColumnByName(name)
	if !ok || t.NumRows() == 0 {
		return false
	}

	distinct := make(map[string]struct{})
	for _, v := range col.Values {
		distinct[table.FormatValue(v)] = struct{}{}
	}

	ratio := float64(len(distinct)) / float64(t.NumRows())

	return ratio < groupCardinalityRatio
}
