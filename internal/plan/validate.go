package plan

import (
	"fmt"
	"strings"

	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// shape tracks the statically known schema of a binding as ops are
// applied. After a pivot the column set depends on data, so the shape
// turns dynamic and column checks are skipped downstream.
type shape struct {
	cols    []table.ColumnSchema
	dynamic bool
}

func shapeOf(s table.Schema) shape {
	cols := make([]table.ColumnSchema, len(s.Columns))
	copy(cols, s.Columns)

	return shape{cols: cols}
}

func (s shape) has(name string) bool {
	if s.dynamic {
		return true
	}

	for _, c := range s.cols {
		if c.Name == name {
			return true
		}
	}

	return false
}

func (s shape) colType(name string) (table.Type, bool) {
	for _, c := range s.cols {
		if c.Name == name {
			return table.Type(c.Type), true
		}
	}

	return "", false
}

func (s shape) isNumeric(name string) bool {
	if s.dynamic {
		return true
	}

	t, ok := s.colType(name)

	return ok && t == table.TypeNumeric
}

func (s shape) names() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.Name
	}

	return names
}

func (s shape) withColumn(name string, t table.Type) shape {
	out := shape{dynamic: s.dynamic, cols: make([]table.ColumnSchema, 0, len(s.cols)+1)}

	replaced := false

	for _, c := range s.cols {
		if c.Name == name {
			out.cols = append(out.cols, table.ColumnSchema{Name: name, Type: string(t)})
			replaced = true
		} else {
			out.cols = append(out.cols, c)
		}
	}

	if !replaced {
		out.cols = append(out.cols, table.ColumnSchema{Name: name, Type: string(t)})
	}

	return out
}

// Validate checks a program against the schemas of its input bindings
// before anything runs: every source must resolve, every referenced
// column must exist, and every op, function, and comparator must be in
// vocabulary. Column and type violations carry the schema-mismatch type
// so callers can distinguish them from malformed plans.
func Validate(p Program, inputs map[string]table.Schema) error {
	if len(p) == 0 {
		return verrf("plan has no steps")
	}

	scope := make(map[string]shape, len(inputs))
	for name, schema := range inputs {
		scope[name] = shapeOf(schema)
	}

	for i, step := range p {
		sh, err := validateStep(i, step, scope)
		if err != nil {
			return err
		}

		scope[step.Bind] = sh
	}

	return nil
}

func validateStep(i int, step Step, scope map[string]shape) (shape, error) {
	if !validIdent(step.Bind) {
		return shape{}, verrf("step %d: bind %q is not a valid name", i, step.Bind)
	}

	var (
		sh  shape
		err error
	)

	switch {
	case step.From != "" && step.Join != nil:
		return shape{}, verrf("step %d: has both from and join", i)
	case step.From != "":
		src, ok := scope[step.From]
		if !ok {
			return shape{}, verrf("step %d: unknown source binding %q", i, step.From)
		}

		sh = src
	case step.Join != nil:
		sh, err = validateJoin(i, *step.Join, scope)
		if err != nil {
			return shape{}, err
		}
	default:
		return shape{}, verrf("step %d: needs a from or join source", i)
	}

	for j, op := range step.Ops {
		sh, err = applyOp(sh, op)
		if err != nil {
			return shape{}, fmt.Errorf("step %d op %d (%s): %w", i, j, op.Kind, err)
		}
	}

	return sh, nil
}

func validateJoin(i int, j JoinSpec, scope map[string]shape) (shape, error) {
	left, ok := scope[j.Left]
	if !ok {
		return shape{}, verrf("step %d: unknown join side %q", i, j.Left)
	}

	right, ok := scope[j.Right]
	if !ok {
		return shape{}, verrf("step %d: unknown join side %q", i, j.Right)
	}

	kind := j.Kind
	if kind == "" {
		kind = JoinInner
	}

	if !joinKinds[kind] {
		return shape{}, verrf("step %d: unknown join kind %q", i, j.Kind)
	}

	if kind == JoinCross {
		if len(j.On) > 0 {
			return shape{}, verrf("step %d: cross join takes no on columns", i)
		}
	} else if len(j.On) == 0 {
		return shape{}, verrf("step %d: join needs on columns", i)
	}

	for _, col := range j.On {
		if !left.has(col) {
			return shape{}, colErr(col, left, "join left side")
		}

		if !right.has(col) {
			return shape{}, colErr(col, right, "join right side")
		}
	}

	return joinShape(left, right, j.On), nil
}

// joinShape mirrors the executor's output layout: all left columns, then
// right columns minus the keys, with clashing right names suffixed.
func joinShape(left, right shape, on []string) shape {
	if left.dynamic || right.dynamic {
		return shape{dynamic: true}
	}

	keys := make(map[string]bool, len(on))
	for _, k := range on {
		keys[k] = true
	}

	out := shape{cols: make([]table.ColumnSchema, 0, len(left.cols)+len(right.cols))}
	out.cols = append(out.cols, left.cols...)

	for _, c := range right.cols {
		if keys[c.Name] {
			continue
		}

		name := c.Name
		if left.has(name) {
			name += "_right"
		}

		out.cols = append(out.cols, table.ColumnSchema{Name: name, Type: c.Type})
	}

	return out
}

func applyOp(sh shape, op Op) (shape, error) {
	switch op.Kind {
	case OpFilter:
		return applyFilter(sh, op)
	case OpSelect:
		return applySelect(sh, op)
	case OpDerive:
		return applyDerive(sh, op)
	case OpSort:
		return applySort(sh, op)
	case OpLimit:
		return applyLimit(sh, op)
	case OpAggregate:
		return applyAggregate(sh, op)
	case OpSummarize:
		return summarizeShape(), nil
	case OpWindow:
		return applyWindow(sh, op)
	case OpRolling:
		return applyRolling(sh, op)
	case OpPctChange:
		return applyPctChange(sh, op)
	case OpPivot:
		return applyPivot(sh, op)
	case OpUnpivot:
		return applyUnpivot(sh, op)
	default:
		return shape{}, verrf("unknown op %q", op.Kind)
	}
}

func applyFilter(sh shape, op Op) (shape, error) {
	if op.Where != "" {
		if op.Column != "" || op.Cmp != "" {
			return shape{}, verrf("filter takes a column comparison or a where expression, not both")
		}

		return sh, nil
	}

	if op.Column == "" {
		return shape{}, verrf("filter needs a column or a where expression")
	}

	if !sh.has(op.Column) {
		return shape{}, colErr(op.Column, sh, "filter")
	}

	if !cmpVocabulary[op.Cmp] {
		return shape{}, verrf("unknown comparator %q", op.Cmp)
	}

	if op.Cmp != CmpIsNull && op.Cmp != CmpNotNull && len(op.Value) == 0 {
		return shape{}, verrf("comparator %q needs a value", op.Cmp)
	}

	if _, err := op.DecodedValue(); err != nil {
		return shape{}, verrf("%v", err)
	}

	return sh, nil
}

func applySelect(sh shape, op Op) (shape, error) {
	if len(op.Columns) == 0 {
		return shape{}, verrf("select needs columns")
	}

	out := shape{dynamic: sh.dynamic}

	for _, name := range op.Columns {
		if !sh.has(name) {
			return shape{}, colErr(name, sh, "select")
		}

		t, ok := sh.colType(name)
		if !ok {
			t = table.TypeText
		}

		out.cols = append(out.cols, table.ColumnSchema{Name: name, Type: string(t)})
	}

	return out, nil
}

func applyDerive(sh shape, op Op) (shape, error) {
	if op.Column == "" {
		return shape{}, verrf("derive needs a column name")
	}

	if strings.TrimSpace(op.Expr) == "" {
		return shape{}, verrf("derive needs an expr")
	}

	// Expression results are treated as numeric for downstream checks;
	// the executor records the real type after evaluation.
	return sh.withColumn(op.Column, table.TypeNumeric), nil
}

func applySort(sh shape, op Op) (shape, error) {
	if len(op.By) == 0 {
		return shape{}, verrf("sort needs by keys")
	}

	for _, key := range op.By {
		if !sh.has(key.Column) {
			return shape{}, colErr(key.Column, sh, "sort")
		}
	}

	return sh, nil
}

func applyLimit(sh shape, op Op) (shape, error) {
	if op.N <= 0 {
		return shape{}, verrf("limit needs n > 0")
	}

	if op.Offset < 0 {
		return shape{}, verrf("limit offset cannot be negative")
	}

	return sh, nil
}

func applyAggregate(sh shape, op Op) (shape, error) {
	if len(op.Aggs) == 0 {
		return shape{}, verrf("aggregate needs aggs")
	}

	out := shape{}

	for _, g := range op.GroupBy {
		if !sh.has(g) {
			return shape{}, colErr(g, sh, "group by")
		}

		t, ok := sh.colType(g)
		if !ok {
			t = table.TypeText
		}

		out.cols = append(out.cols, table.ColumnSchema{Name: g, Type: string(t)})
	}

	for _, agg := range op.Aggs {
		if !aggFns[agg.Fn] {
			return shape{}, verrf("unknown aggregate fn %q", agg.Fn)
		}

		if agg.Column == "" {
			if agg.Fn != "count" {
				return shape{}, verrf("aggregate fn %q needs a column", agg.Fn)
			}
		} else {
			if !sh.has(agg.Column) {
				return shape{}, colErr(agg.Column, sh, "aggregate")
			}

			if numericAggFns[agg.Fn] && !sh.isNumeric(agg.Column) {
				return shape{}, typeErr(agg.Column, agg.Fn, sh)
			}
		}

		out.cols = append(out.cols, table.ColumnSchema{
			Name: agg.OutName(),
			Type: string(table.TypeNumeric),
		})
	}

	return out, nil
}

func summarizeShape() shape {
	mk := func(name string, t table.Type) table.ColumnSchema {
		return table.ColumnSchema{Name: name, Type: string(t)}
	}

	return shape{cols: []table.ColumnSchema{
		mk("column", table.TypeText),
		mk("type", table.TypeText),
		mk("count", table.TypeNumeric),
		mk("nulls", table.TypeNumeric),
		mk("distinct", table.TypeNumeric),
		mk("mean", table.TypeNumeric),
		mk("std", table.TypeNumeric),
		mk("min", table.TypeText),
		mk("max", table.TypeText),
	}}
}

func applyWindow(sh shape, op Op) (shape, error) {
	if !windowFns[op.Fn] {
		return shape{}, verrf("unknown window fn %q", op.Fn)
	}

	for _, p := range op.PartitionBy {
		if !sh.has(p) {
			return shape{}, colErr(p, sh, "partition by")
		}
	}

	for _, key := range op.OrderBy {
		if !sh.has(key.Column) {
			return shape{}, colErr(key.Column, sh, "order by")
		}
	}

	outType := table.TypeNumeric

	switch op.Fn {
	case WinRank, WinDenseRank:
		if len(op.OrderBy) == 0 {
			return shape{}, verrf("window fn %q needs order_by", op.Fn)
		}
	case WinLag, WinLead:
		if op.Column == "" {
			return shape{}, verrf("window fn %q needs a column", op.Fn)
		}

		if !sh.has(op.Column) {
			return shape{}, colErr(op.Column, sh, "window")
		}

		if t, ok := sh.colType(op.Column); ok {
			outType = t
		}

		if op.Offset < 0 {
			return shape{}, verrf("window offset cannot be negative")
		}
	case WinCumsum:
		if op.Column == "" {
			return shape{}, verrf("window fn cumsum needs a column")
		}

		if !sh.has(op.Column) {
			return shape{}, colErr(op.Column, sh, "window")
		}

		if !sh.isNumeric(op.Column) {
			return shape{}, typeErr(op.Column, op.Fn, sh)
		}
	}

	name := op.As
	if name == "" {
		name = op.Fn
	}

	return sh.withColumn(name, outType), nil
}

func applyRolling(sh shape, op Op) (shape, error) {
	if !rollingFns[op.Fn] {
		return shape{}, verrf("unknown rolling fn %q", op.Fn)
	}

	if op.Window < 1 {
		return shape{}, verrf("rolling needs window >= 1")
	}

	if op.Column == "" {
		return shape{}, verrf("rolling needs a column")
	}

	if !sh.has(op.Column) {
		return shape{}, colErr(op.Column, sh, "rolling")
	}

	if !sh.isNumeric(op.Column) {
		return shape{}, typeErr(op.Column, op.Fn, sh)
	}

	for _, key := range op.OrderBy {
		if !sh.has(key.Column) {
			return shape{}, colErr(key.Column, sh, "order by")
		}
	}

	name := op.As
	if name == "" {
		name = fmt.Sprintf("%s_%s_%d", op.Column, op.Fn, op.Window)
	}

	return sh.withColumn(name, table.TypeNumeric), nil
}

func applyPctChange(sh shape, op Op) (shape, error) {
	if op.Column == "" {
		return shape{}, verrf("pct_change needs a column")
	}

	if !sh.has(op.Column) {
		return shape{}, colErr(op.Column, sh, "pct_change")
	}

	if !sh.isNumeric(op.Column) {
		return shape{}, typeErr(op.Column, "pct_change", sh)
	}

	if op.Periods < 0 {
		return shape{}, verrf("pct_change periods cannot be negative")
	}

	for _, key := range op.OrderBy {
		if !sh.has(key.Column) {
			return shape{}, colErr(key.Column, sh, "order by")
		}
	}

	name := op.As
	if name == "" {
		name = op.Column + "_pct_change"
	}

	return sh.withColumn(name, table.TypeNumeric), nil
}

func applyPivot(sh shape, op Op) (shape, error) {
	if op.Index == "" || len(op.Columns) != 1 || op.Values == "" {
		return shape{}, verrf("pivot needs index, one columns entry, and values")
	}

	if !sh.has(op.Index) {
		return shape{}, colErr(op.Index, sh, "pivot index")
	}

	if !sh.has(op.Columns[0]) {
		return shape{}, colErr(op.Columns[0], sh, "pivot columns")
	}

	if !sh.has(op.Values) {
		return shape{}, colErr(op.Values, sh, "pivot values")
	}

	agg := op.Agg
	if agg == "" {
		agg = "sum"
	}

	if !pivotAggs[agg] {
		return shape{}, verrf("unknown pivot agg %q", op.Agg)
	}

	if (agg == "sum" || agg == "mean") && !sh.isNumeric(op.Values) {
		return shape{}, typeErr(op.Values, agg, sh)
	}

	// Output columns depend on the data in the spread column.
	return shape{dynamic: true}, nil
}

func applyUnpivot(sh shape, op Op) (shape, error) {
	if len(op.Fold) == 0 {
		return shape{}, verrf("unpivot needs fold columns")
	}

	out := shape{}

	for _, name := range op.Keep {
		if !sh.has(name) {
			return shape{}, colErr(name, sh, "unpivot keep")
		}

		t, ok := sh.colType(name)
		if !ok {
			t = table.TypeText
		}

		out.cols = append(out.cols, table.ColumnSchema{Name: name, Type: string(t)})
	}

	allNumeric := !sh.dynamic

	for _, name := range op.Fold {
		if !sh.has(name) {
			return shape{}, colErr(name, sh, "unpivot fold")
		}

		if !sh.isNumeric(name) {
			allNumeric = false
		}
	}

	nameAs := op.NameAs
	if nameAs == "" {
		nameAs = "name"
	}

	valueAs := op.ValueAs
	if valueAs == "" {
		valueAs = "value"
	}

	valueType := table.TypeText
	if allNumeric {
		valueType = table.TypeNumeric
	}

	out.cols = append(out.cols,
		table.ColumnSchema{Name: nameAs, Type: string(table.TypeText)},
		table.ColumnSchema{Name: valueAs, Type: string(valueType)},
	)

	return out, nil
}

func verrf(format string, args ...any) error {
	return errors.Newf(errors.ErrTypeValidation, format, args...).
		WithStage(errors.StageValidation)
}

func colErr(col string, sh shape, where string) error {
	err := errors.Newf(errors.ErrTypeSchemaMismatch,
		"%s references unknown column %q", where, col).
		WithStage(errors.StageValidation)

	if names := sh.names(); len(names) > 0 {
		err = err.WithSuggestion("available columns: " + strings.Join(names, ", "))
	}

	return err
}

func typeErr(col, fn string, sh shape) error {
	t, _ := sh.colType(col)

	return errors.Newf(errors.ErrTypeSchemaMismatch,
		"%s requires a numeric column, %q is %s", fn, col, t).
		WithStage(errors.StageValidation)
}
