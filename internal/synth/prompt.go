package synth

import (
	"fmt"
	"strings"

	"github.com/tabiq-dev/tabiq/internal/table"
)

// Completion ceilings per query class. Simple classes need short
// answers; a tighter ceiling keeps a confused model from rambling.
func maxTokensFor(class Class) int {
	switch class {
	case ClassJoin:
		return 800
	case ClassAggregation:
		return 600
	case ClassOptimization:
		return 800
	default:
		return 1000
	}
}

const planGrammar = `A plan is a JSON array of steps. Each step reads a table and binds the outcome:
  {"bind": "<name>", "from": "<table or earlier bind>", "ops": [...]}
or joins two tables:
  {"bind": "<name>", "join": {"left": "<t1>", "right": "<t2>", "on": ["<shared column>"], "kind": "inner|left|right|outer|cross"}, "ops": [...]}

Ops:
  {"op": "filter", "column": C, "cmp": "equals|not_equals|greater_than|less_than|contains|is_null|not_null", "value": V}
  {"op": "filter", "where": E}
  {"op": "select", "columns": [C, ...]}
  {"op": "derive", "column": C, "expr": E}
  {"op": "sort", "by": [{"column": C, "desc": true}, ...]}
  {"op": "limit", "n": N}
  {"op": "aggregate", "group_by": [C, ...], "aggs": [{"column": C, "fn": "count|sum|mean|min|max|median|std|count_distinct", "as": A}]}
  {"op": "summarize"}
  {"op": "window", "fn": "row_number|rank|dense_rank|lag|lead|cumsum", "column": C, "partition_by": [C, ...], "order_by": [{"column": C, "desc": false}], "as": A}
  {"op": "rolling", "column": C, "window": N, "fn": "mean|sum", "as": A}
  {"op": "pct_change", "column": C, "periods": N, "as": A}
  {"op": "pivot", "index": C, "columns": [C], "values": C, "agg": "sum|mean|count|min|max"}
  {"op": "unpivot", "keep": [C, ...], "fold": [C, ...], "name_as": A, "value_as": A}

E is a single Starlark expression over the row's columns, for example
"amount > 100 and region != None". Columns with awkward names are
reached as row["the name"]. math and time are available.

Rules:
- Use only columns that exist in the schemas below.
- The final step must bind "result".
- Respond with the JSON array only, no prose and no code fences.`

func systemPrompt(class Class) string {
	var guidance string

	switch class {
	case ClassJoin:
		guidance = "Join the tables on the shared key column, then filter, aggregate, or sort as the question asks."
	case ClassAggregation:
		guidance = "Group and aggregate to answer the question. Name derived outputs with \"as\"."
	case ClassTimeSeries:
		guidance = "Sort by the time column before applying rolling, pct_change, or window ops."
	case ClassOptimization:
		guidance = "Rewrite the question as an efficient plan: select only the needed columns and filter as early as possible."
	default:
		guidance = "Prefer the fewest ops that answer the question."
	}

	return "You translate questions about tabular data into a JSON operation plan.\n" +
		guidance + "\n\n" + planGrammar
}

func userPrompt(task Task) string {
	var b strings.Builder

	b.WriteString("Tables:\n")

	for _, in := range task.Inputs {
		fmt.Fprintf(&b, "%s (%d rows, %d columns):\n",
			in.Name, in.Table.NumRows(), in.Table.NumCols())

		for _, col := range table.SchemaOf(in.Table).Columns {
			fmt.Fprintf(&b, "  - %s (%s)\n", col.Name, col.Type)
		}
	}

	fmt.Fprintf(&b, "\nIntent: %s\n", task.Intent)

	if len(task.Entities.Columns) > 0 {
		fmt.Fprintf(&b, "Mentioned columns: %s\n", strings.Join(task.Entities.Columns, ", "))
	}

	if len(task.Entities.Operations) > 0 {
		fmt.Fprintf(&b, "Detected comparisons: %s\n", strings.Join(task.Entities.Operations, ", "))
	}

	if len(task.Entities.Values) > 0 {
		fmt.Fprintf(&b, "Mentioned values: %s\n", strings.Join(task.Entities.Values, ", "))
	}

	if task.DateColumn != "" {
		fmt.Fprintf(&b, "Time column: %s\n", task.DateColumn)
	}

	if task.TSOp != "" {
		fmt.Fprintf(&b, "Time-series operation: %s\n", task.TSOp)
	}

	if len(task.JoinOn) > 0 {
		fmt.Fprintf(&b, "Likely join key: %s\n", strings.Join(task.JoinOn, ", "))
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n", task.Query)

	return b.String()
}
