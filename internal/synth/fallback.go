package synth

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/lang"
	"github.com/tabiq-dev/tabiq/internal/plan"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// Rows returned by the default template when nothing better is known
const defaultPreviewRows = 10

// fallbackProgram builds the deterministic template for the task's
// class. Templates always produce a plan; the only errors are missing
// preconditions (a second table, a join key, a time column).
func (s *Synthesizer) fallbackProgram(task Task) (plan.Program, error) {
	switch task.Class {
	case ClassJoin:
		return joinFallback(task)
	case ClassAggregation:
		return aggregationFallback(task), nil
	case ClassTimeSeries:
		return timeSeriesFallback(task)
	case ClassOptimization:
		return identityProgram(task.Inputs[0].Name), nil
	default:
		return basicFallback(task), nil
	}
}

func basicFallback(task Task) plan.Program {
	src := task.Inputs[0].Name

	switch task.Intent {
	case lang.IntentFilter:
		if op := filterOpFromEntities(task.Entities); op != nil {
			return program(src, *op)
		}
	case lang.IntentAggregate:
		if len(task.Entities.Columns) > 0 {
			return program(src, entityAggregateOp(task))
		}
	case lang.IntentSort:
		if len(task.Entities.Columns) > 0 {
			return program(src, plan.Op{
				Kind: plan.OpSort,
				By:   plan.SortKeys{{Column: task.Entities.Columns[0]}},
			})
		}
	case lang.IntentSummarize, lang.IntentStatistics:
		return program(src, plan.Op{Kind: plan.OpSummarize})
	}

	return previewProgram(src)
}

// entityAggregateOp groups by the first non-numeric entity column. When
// the query names an aggregate function and a numeric entity column is
// available it aggregates that column, otherwise it counts group sizes.
func entityAggregateOp(task Task) plan.Op {
	t := task.Inputs[0].Table

	var group, value string

	for _, col := range task.Entities.Columns {
		if t.ColumnType(col) == table.TypeNumeric {
			if value == "" {
				value = col
			}
		} else if group == "" {
			group = col
		}
	}

	if group == "" {
		group = task.Entities.Columns[0]
	}

	if fn := queryAggFn(task.Query); fn != "" && fn != "count" && value != "" && value != group {
		return plan.Op{
			Kind:    plan.OpAggregate,
			GroupBy: plan.StringList{group},
			Aggs:    []plan.Agg{{Column: value, Fn: fn}},
		}
	}

	return plan.Op{
		Kind:    plan.OpAggregate,
		GroupBy: plan.StringList{group},
		Aggs:    []plan.Agg{{Fn: "count"}},
	}
}

func queryAggFn(query string) string {
	lower := strings.ToLower(query)

	switch {
	case strings.Contains(lower, "sum"):
		return "sum"
	case strings.Contains(lower, "average"), strings.Contains(lower, "mean"):
		return "mean"
	case strings.Contains(lower, "count"):
		return "count"
	}

	return ""
}

// filterOpFromEntities builds a filter from extracted entities: a
// numeric threshold comparison when one was detected, else equality on
// the first column/value pair. Nil when the entities cannot support one.
func filterOpFromEntities(e lang.EntitySet) *plan.Op {
	if len(e.Columns) == 0 {
		return nil
	}

	col := e.Columns[0]

	if tok, ok := firstNumericToken(e.Values); ok {
		if e.HasOperation(plan.CmpGreaterThan) {
			return &plan.Op{
				Kind: plan.OpFilter, Column: col,
				Cmp: plan.CmpGreaterThan, Value: json.RawMessage(tok),
			}
		}

		if e.HasOperation(plan.CmpLessThan) {
			return &plan.Op{
				Kind: plan.OpFilter, Column: col,
				Cmp: plan.CmpLessThan, Value: json.RawMessage(tok),
			}
		}
	}

	if len(e.Values) > 0 {
		value, err := json.Marshal(e.Values[0])
		if err != nil {
			return nil
		}

		return &plan.Op{
			Kind: plan.OpFilter, Column: col,
			Cmp: plan.CmpEquals, Value: value,
		}
	}

	return nil
}

func firstNumericToken(values []string) (string, bool) {
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return v, true
		}
	}

	return "", false
}

func aggregationFallback(task Task) plan.Program {
	src := task.Inputs[0].Name

	var aggs []plan.Agg

	for _, spec := range task.Aggs {
		for _, fn := range spec.Fns {
			aggs = append(aggs, plan.Agg{Column: spec.Column, Fn: fn})
		}
	}

	if len(aggs) == 0 {
		if len(task.GroupBy) == 0 {
			return previewProgram(src)
		}

		aggs = []plan.Agg{{Fn: "count"}}
	}

	return program(src, plan.Op{
		Kind:    plan.OpAggregate,
		GroupBy: plan.StringList(task.GroupBy),
		Aggs:    aggs,
	})
}

func joinFallback(task Task) (plan.Program, error) {
	if len(task.Inputs) < 2 {
		return nil, errors.NewInsufficientInputs(
			"joining needs at least two tables").
			WithSuggestion("pass a second file on the command line")
	}

	if len(task.JoinOn) == 0 {
		return nil, errors.NewInsufficientInputs(
			"no join key detected between the tables").
			WithSuggestion("name the join column in the query, or rename the key columns to match")
	}

	kind := task.JoinKind
	if kind == "" {
		kind = plan.JoinInner
	}

	return plan.Program{{
		Bind: plan.ResultBinding,
		Join: &plan.JoinSpec{
			Left:  task.Inputs[0].Name,
			Right: task.Inputs[1].Name,
			On:    plan.StringList(task.JoinOn),
			Kind:  kind,
		},
		Ops: []plan.Op{},
	}}, nil
}

func timeSeriesFallback(task Task) (plan.Program, error) {
	if task.DateColumn == "" {
		return nil, errors.NewInsufficientInputs(
			"no date or time column detected").
			WithSuggestion("name the time column in the query, or add one with a temporal type")
	}

	value := valueColumn(task)
	if value == "" {
		return nil, errors.NewInsufficientInputs(
			"no numeric column to analyze over time")
	}

	src := task.Inputs[0].Name
	order := plan.SortKeys{{Column: task.DateColumn}}

	switch task.TSOp {
	case lang.TSMovingAverage:
		return program(src,
			plan.Op{
				Kind: plan.OpRolling, Column: value, Window: 7,
				Fn: "mean", OrderBy: order, As: value + "_ma_7",
			},
			plan.Op{
				Kind: plan.OpRolling, Column: value, Window: 30,
				Fn: "mean", OrderBy: order, As: value + "_ma_30",
			},
		), nil
	case lang.TSGrowthRate:
		return program(src,
			plan.Op{
				Kind: plan.OpPctChange, Column: value, Periods: 1,
				OrderBy: order, As: value + "_pct_1",
			},
			plan.Op{
				Kind: plan.OpPctChange, Column: value, Periods: 7,
				OrderBy: order, As: value + "_pct_7",
			},
		), nil
	default:
		// Trend covers seasonality, forecast, and anomaly requests too:
		// order by time and smooth, the formatter narrates direction.
		return program(src,
			plan.Op{Kind: plan.OpSort, By: order},
			plan.Op{
				Kind: plan.OpRolling, Column: value, Window: 10,
				Fn: "mean", As: value + "_trend",
			},
		), nil
	}
}

// valueColumn picks the series to analyze: the first mentioned numeric
// column, else the table's first numeric column.
func valueColumn(task Task) string {
	t := task.Inputs[0].Table

	numeric := make(map[string]bool)
	for _, name := range t.NumericColumns() {
		numeric[name] = true
	}

	for _, name := range task.Entities.Columns {
		if numeric[name] && name != task.DateColumn {
			return name
		}
	}

	for _, name := range t.NumericColumns() {
		if name != task.DateColumn {
			return name
		}
	}

	return ""
}

func identityProgram(src string) plan.Program {
	return plan.Program{{Bind: plan.ResultBinding, From: src, Ops: []plan.Op{}}}
}

func program(src string, ops ...plan.Op) plan.Program {
	return plan.Program{{Bind: plan.ResultBinding, From: src, Ops: ops}}
}

func previewProgram(src string) plan.Program {
	return program(src, plan.Op{Kind: plan.OpLimit, N: defaultPreviewRows})
}
