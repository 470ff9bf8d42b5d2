package sandbox

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/tabiq-dev/tabiq/internal/plan"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// pivotMaxColumns bounds the column fan-out of a pivot. Row counts are
// bounded separately by the executor's result-row ceiling.
const pivotMaxColumns = 1000

// pollInterval is the row stride between context checks in data loops
const pollInterval = 1024

// exec carries the per-run state kernels need: the cancellation context,
// the Starlark thread for where and derive expressions, and the result
// size ceiling.
type exec struct {
	ctx     context.Context
	thread  *starlark.Thread
	maxRows int
}

func (e *exec) poll(i int) error {
	if i%pollInterval == 0 {
		return e.ctx.Err()
	}

	return nil
}

func (e *exec) applyOps(t *table.Table, ops []plan.Op) (*table.Table, error) {
	var err error

	for _, op := range ops {
		t, err = e.applyOp(t, op)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op.Kind, err)
		}
	}

	return t, nil
}

func (e *exec) applyOp(t *table.Table, op plan.Op) (*table.Table, error) {
	switch op.Kind {
	case plan.OpFilter:
		return e.opFilter(t, op)
	case plan.OpSelect:
		return t.Select(op.Columns)
	case plan.OpDerive:
		return e.opDerive(t, op)
	case plan.OpSort:
		return t.Gather(sortedIndices(t, op.By)), nil
	case plan.OpLimit:
		return t.Slice(op.Offset, op.N), nil
	case plan.OpAggregate:
		return e.opAggregate(t, op)
	case plan.OpSummarize:
		return e.opSummarize(t)
	case plan.OpWindow:
		return e.opWindow(t, op)
	case plan.OpRolling:
		return e.opRolling(t, op)
	case plan.OpPctChange:
		return e.opPctChange(t, op)
	case plan.OpPivot:
		return e.opPivot(t, op)
	case plan.OpUnpivot:
		return e.opUnpivot(t, op)
	default:
		return nil, fmt.Errorf("unknown op %q", op.Kind)
	}
}

// opFilter keeps rows matched by a column comparison or a where
// expression. Null cells never match a comparison other than is_null.
func (e *exec) opFilter(t *table.Table, op plan.Op) (*table.Table, error) {
	var indices []int

	if op.Where != "" {
		expr, err := compileExpr(e.thread, op.Where, t)
		if err != nil {
			return nil, err
		}

		for i := 0; i < t.NumRows(); i++ {
			if err := e.poll(i); err != nil {
				return nil, err
			}

			keep, err := expr.evalBool(e.thread, t, i)
			if err != nil {
				return nil, fmt.Errorf("where %q: %w", op.Where, err)
			}

			if keep {
				indices = append(indices, i)
			}
		}

		return t.Gather(indices), nil
	}

	col, ok := t.ColumnByName(op.Column)
	if !ok {
		return nil, fmt.Errorf("column not found: %s", op.Column)
	}

	value, err := op.DecodedValue()
	if err != nil {
		return nil, err
	}

	for i, cell := range col.Values {
		if err := e.poll(i); err != nil {
			return nil, err
		}

		if matchCmp(cell, op.Cmp, value) {
			indices = append(indices, i)
		}
	}

	return t.Gather(indices), nil
}

func matchCmp(cell any, cmp string, value any) bool {
	if cell == nil {
		return cmp == plan.CmpIsNull
	}

	switch cmp {
	case plan.CmpIsNull:
		return false
	case plan.CmpNotNull:
		return true
	case plan.CmpEquals:
		return table.Equal(cell, value)
	case plan.CmpNotEquals:
		return !table.Equal(cell, value)
	case plan.CmpGreaterThan:
		return table.Compare(cell, value) > 0
	case plan.CmpLessThan:
		return table.Compare(cell, value) < 0
	case plan.CmpContains:
		return strings.Contains(table.FormatValue(cell), table.FormatValue(value))
	default:
		return false
	}
}

// opDerive appends a computed column, replacing any column of the same
// name. The column type is inferred from the evaluated values.
func (e *exec) opDerive(t *table.Table, op plan.Op) (*table.Table, error) {
	expr, err := compileExpr(e.thread, op.Expr, t)
	if err != nil {
		return nil, err
	}

	values := make([]any, t.NumRows())

	for i := range values {
		if err := e.poll(i); err != nil {
			return nil, err
		}

		out, err := expr.evalRow(e.thread, t, i)
		if err != nil {
			return nil, fmt.Errorf("expr %q: %w", op.Expr, err)
		}

		values[i] = fromStarlark(out)
	}

	return withColumn(t, table.Column{
		Name:   op.Column,
		Type:   typeOfValues(values),
		Values: values,
	})
}

// sortedIndices returns row indices ordered by the sort keys. The sort
// is stable so equal keys keep their incoming order.
func sortedIndices(t *table.Table, keys plan.SortKeys) []int {
	indices := make([]int, t.NumRows())
	for i := range indices {
		indices[i] = i
	}

	cols := make([]table.Column, len(keys))
	for k, key := range keys {
		cols[k], _ = t.ColumnByName(key.Column)
	}

	sort.SliceStable(indices, func(a, b int) bool {
		for k, key := range keys {
			c := table.Compare(cols[k].Values[indices[a]], cols[k].Values[indices[b]])
			if key.Desc {
				c = -c
			}

			if c != 0 {
				return c < 0
			}
		}

		return false
	})

	return indices
}

// group is one group-by bucket: its key cell values and member rows
type group struct {
	key  []any
	rows []int
}

// groupRows buckets row indices by the group columns, then orders groups
// ascending by key so grouped output is deterministic.
func (e *exec) groupRows(t *table.Table, by []string) ([]group, error) {
	if len(by) == 0 {
		all := make([]int, t.NumRows())
		for i := range all {
			all[i] = i
		}

		return []group{{rows: all}}, nil
	}

	cols := make([]table.Column, len(by))
	for i, name := range by {
		cols[i], _ = t.ColumnByName(name)
	}

	index := make(map[string]int)

	var groups []group

	for i := 0; i < t.NumRows(); i++ {
		if err := e.poll(i); err != nil {
			return nil, err
		}

		key := make([]any, len(by))
		for c := range cols {
			key[c] = cols[c].Values[i]
		}

		ks := groupKey(key)

		gi, ok := index[ks]
		if !ok {
			gi = len(groups)
			index[ks] = gi
			groups = append(groups, group{key: key})
		}

		groups[gi].rows = append(groups[gi].rows, i)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		for c := range groups[a].key {
			cmp := table.Compare(groups[a].key[c], groups[b].key[c])
			if cmp != 0 {
				return cmp < 0
			}
		}

		return false
	})

	return groups, nil
}

// groupKey builds a collision-safe string key from cell values. A kind
// prefix keeps the string "1" distinct from the number 1.
func groupKey(values []any) string {
	var b strings.Builder

	for i, v := range values {
		if i > 0 {
			b.WriteByte(0x1f)
		}

		switch v.(type) {
		case nil:
			b.WriteString("n:")
		case float64:
			b.WriteString("f:")
		case string:
			b.WriteString("s:")
		case bool:
			b.WriteString("b:")
		default:
			b.WriteString("t:")
		}

		b.WriteString(table.FormatValue(v))
	}

	return b.String()
}

func (e *exec) opAggregate(t *table.Table, op plan.Op) (*table.Table, error) {
	groups, err := e.groupRows(t, op.GroupBy)
	if err != nil {
		return nil, err
	}

	cols := make([]table.Column, 0, len(op.GroupBy)+len(op.Aggs))

	for g, name := range op.GroupBy {
		values := make([]any, len(groups))
		for i, grp := range groups {
			values[i] = grp.key[g]
		}

		cols = append(cols, table.Column{
			Name:   name,
			Type:   t.ColumnType(name),
			Values: values,
		})
	}

	for _, agg := range op.Aggs {
		var src table.Column
		if agg.Column != "" {
			src, _ = t.ColumnByName(agg.Column)
		}

		values := make([]any, len(groups))

		for i, grp := range groups {
			v, err := applyAgg(agg.Fn, src, grp.rows)
			if err != nil {
				return nil, err
			}

			values[i] = v
		}

		cols = append(cols, table.Column{
			Name:   agg.OutName(),
			Type:   typeOfValues(values),
			Values: values,
		})
	}

	return table.New(cols)
}

// applyAgg computes one aggregate over the group's rows. Null cells are
// skipped; an aggregate over no values yields null, except count and sum
// which yield 0.
func applyAgg(fn string, col table.Column, rows []int) (any, error) {
	if col.Values == nil && fn == "count" {
		return float64(len(rows)), nil
	}

	switch fn {
	case "count":
		n := 0

		for _, r := range rows {
			if col.Values[r] != nil {
				n++
			}
		}

		return float64(n), nil
	case "count_distinct":
		seen := make(map[string]bool)

		for _, r := range rows {
			if v := col.Values[r]; v != nil {
				seen[groupKey([]any{v})] = true
			}
		}

		return float64(len(seen)), nil
	case "sum":
		total := 0.0

		for _, r := range rows {
			if f, ok := table.AsFloat(col.Values[r]); ok && col.Values[r] != nil {
				total += f
			}
		}

		return total, nil
	case "mean":
		total, n := 0.0, 0

		for _, r := range rows {
			if f, ok := table.AsFloat(col.Values[r]); ok && col.Values[r] != nil {
				total += f
				n++
			}
		}

		if n == 0 {
			return nil, nil
		}

		return total / float64(n), nil
	case "min", "max":
		var best any

		for _, r := range rows {
			v := col.Values[r]
			if v == nil {
				continue
			}

			if best == nil {
				best = v
				continue
			}

			cmp := table.Compare(v, best)
			if (fn == "min" && cmp < 0) || (fn == "max" && cmp > 0) {
				best = v
			}
		}

		return best, nil
	case "median":
		floats := groupFloats(col, rows)
		if len(floats) == 0 {
			return nil, nil
		}

		sort.Float64s(floats)

		mid := len(floats) / 2
		if len(floats)%2 == 1 {
			return floats[mid], nil
		}

		return (floats[mid-1] + floats[mid]) / 2, nil
	case "std":
		floats := groupFloats(col, rows)
		if len(floats) < 2 {
			return nil, nil
		}

		mean := 0.0
		for _, f := range floats {
			mean += f
		}

		mean /= float64(len(floats))

		ss := 0.0
		for _, f := range floats {
			d := f - mean
			ss += d * d
		}

		return math.Sqrt(ss / float64(len(floats)-1)), nil
	default:
		return nil, fmt.Errorf("unknown aggregate fn %q", fn)
	}
}

func groupFloats(col table.Column, rows []int) []float64 {
	floats := make([]float64, 0, len(rows))

	for _, r := range rows {
		v := col.Values[r]
		if v == nil {
			continue
		}

		if f, ok := table.AsFloat(v); ok {
			floats = append(floats, f)
		}
	}

	return floats
}

// opSummarize produces one row of descriptive statistics per column.
// Mean and std are only computed for numeric columns.
func (e *exec) opSummarize(t *table.Table) (*table.Table, error) {
	n := t.NumCols()

	names := make([]any, n)
	types := make([]any, n)
	counts := make([]any, n)
	nulls := make([]any, n)
	distincts := make([]any, n)
	means := make([]any, n)
	stds := make([]any, n)
	mins := make([]any, n)
	maxs := make([]any, n)

	for c := 0; c < n; c++ {
		if err := e.poll(c); err != nil {
			return nil, err
		}

		col := t.Column(c)
		all := make([]int, len(col.Values))

		seen := make(map[string]bool)

		nullCount := 0

		for i, v := range col.Values {
			all[i] = i

			if v == nil {
				nullCount++
			} else {
				seen[groupKey([]any{v})] = true
			}
		}

		names[c] = col.Name
		types[c] = string(col.Type)
		counts[c] = float64(len(col.Values) - nullCount)
		nulls[c] = float64(nullCount)
		distincts[c] = float64(len(seen))

		if col.Type == table.TypeNumeric {
			means[c], _ = applyAgg("mean", col, all)
			stds[c], _ = applyAgg("std", col, all)
		}

		if mn, _ := applyAgg("min", col, all); mn != nil {
			mins[c] = table.FormatValue(mn)
		}

		if mx, _ := applyAgg("max", col, all); mx != nil {
			maxs[c] = table.FormatValue(mx)
		}
	}

	return table.New([]table.Column{
		{Name: "column", Type: table.TypeText, Values: names},
		{Name: "type", Type: table.TypeText, Values: types},
		{Name: "count", Type: table.TypeNumeric, Values: counts},
		{Name: "nulls", Type: table.TypeNumeric, Values: nulls},
		{Name: "distinct", Type: table.TypeNumeric, Values: distincts},
		{Name: "mean", Type: table.TypeNumeric, Values: means},
		{Name: "std", Type: table.TypeNumeric, Values: stds},
		{Name: "min", Type: table.TypeText, Values: mins},
		{Name: "max", Type: table.TypeText, Values: maxs},
	})
}

func (e *exec) opWindow(t *table.Table, op plan.Op) (*table.Table, error) {
	groups, err := e.groupRows(t, op.PartitionBy)
	if err != nil {
		return nil, err
	}

	var src table.Column
	if op.Column != "" {
		src, _ = t.ColumnByName(op.Column)
	}

	offset := op.Offset
	if offset == 0 {
		offset = 1
	}

	orderCols := make([]table.Column, len(op.OrderBy))
	for k, key := range op.OrderBy {
		orderCols[k], _ = t.ColumnByName(key.Column)
	}

	sameOrderKey := func(a, b int) bool {
		for k := range orderCols {
			if !table.Equal(orderCols[k].Values[a], orderCols[k].Values[b]) {
				return false
			}
		}

		return true
	}

	out := make([]any, t.NumRows())

	for _, grp := range groups {
		rows := grp.rows
		if len(op.OrderBy) > 0 {
			rows = orderWithin(t, rows, op.OrderBy)
		}

		switch op.Fn {
		case plan.WinRowNumber:
			for i, r := range rows {
				out[r] = float64(i + 1)
			}
		case plan.WinRank:
			rank := 1

			for i, r := range rows {
				if i > 0 && !sameOrderKey(rows[i-1], r) {
					rank = i + 1
				}

				out[r] = float64(rank)
			}
		case plan.WinDenseRank:
			rank := 1

			for i, r := range rows {
				if i > 0 && !sameOrderKey(rows[i-1], r) {
					rank++
				}

				out[r] = float64(rank)
			}
		case plan.WinLag:
			for i, r := range rows {
				if i-offset >= 0 {
					out[r] = src.Values[rows[i-offset]]
				}
			}
		case plan.WinLead:
			for i, r := range rows {
				if i+offset < len(rows) {
					out[r] = src.Values[rows[i+offset]]
				}
			}
		case plan.WinCumsum:
			total := 0.0

			for _, r := range rows {
				v := src.Values[r]
				if v == nil {
					continue
				}

				f, _ := table.AsFloat(v)
				total += f
				out[r] = total
			}
		default:
			return nil, fmt.Errorf("unknown window fn %q", op.Fn)
		}
	}

	name := op.As
	if name == "" {
		name = op.Fn
	}

	return withColumn(t, table.Column{
		Name:   name,
		Type:   typeOfValues(out),
		Values: out,
	})
}

// orderWithin sorts a partition's row indices by the order keys,
// keeping the incoming order for ties.
func orderWithin(t *table.Table, rows []int, keys plan.SortKeys) []int {
	cols := make([]table.Column, len(keys))
	for k, key := range keys {
		cols[k], _ = t.ColumnByName(key.Column)
	}

	sorted := make([]int, len(rows))
	copy(sorted, rows)

	sort.SliceStable(sorted, func(a, b int) bool {
		for k, key := range keys {
			c := table.Compare(cols[k].Values[sorted[a]], cols[k].Values[sorted[b]])
			if key.Desc {
				c = -c
			}

			if c != 0 {
				return c < 0
			}
		}

		return false
	})

	return sorted
}

// opRolling computes a trailing-window mean or sum. Rows earlier than a
// full window, and windows containing nulls, yield null. An order_by
// reorders the whole table before the window runs.
func (e *exec) opRolling(t *table.Table, op plan.Op) (*table.Table, error) {
	if len(op.OrderBy) > 0 {
		t = t.Gather(sortedIndices(t, op.OrderBy))
	}

	col, _ := t.ColumnByName(op.Column)
	out := make([]any, t.NumRows())

	for i := range out {
		if err := e.poll(i); err != nil {
			return nil, err
		}

		if i+1 < op.Window {
			continue
		}

		total, ok := 0.0, true

		for j := i + 1 - op.Window; j <= i; j++ {
			f, fok := table.AsFloat(col.Values[j])
			if col.Values[j] == nil || !fok {
				ok = false
				break
			}

			total += f
		}

		if !ok {
			continue
		}

		if op.Fn == "mean" {
			out[i] = total / float64(op.Window)
		} else {
			out[i] = total
		}
	}

	name := op.As
	if name == "" {
		name = fmt.Sprintf("%s_%s_%d", op.Column, op.Fn, op.Window)
	}

	return withColumn(t, table.Column{
		Name:   name,
		Type:   table.TypeNumeric,
		Values: out,
	})
}

// opPctChange computes the relative change against the value periods
// rows earlier. Null or zero baselines yield null.
func (e *exec) opPctChange(t *table.Table, op plan.Op) (*table.Table, error) {
	if len(op.OrderBy) > 0 {
		t = t.Gather(sortedIndices(t, op.OrderBy))
	}

	periods := op.Periods
	if periods == 0 {
		periods = 1
	}

	col, _ := t.ColumnByName(op.Column)
	out := make([]any, t.NumRows())

	for i := range out {
		if i < periods {
			continue
		}

		cur, curOK := table.AsFloat(col.Values[i])
		prev, prevOK := table.AsFloat(col.Values[i-periods])

		if col.Values[i] == nil || col.Values[i-periods] == nil || !curOK || !prevOK || prev == 0 {
			continue
		}

		out[i] = (cur - prev) / prev
	}

	name := op.As
	if name == "" {
		name = op.Column + "_pct_change"
	}

	return withColumn(t, table.Column{
		Name:   name,
		Type:   table.TypeNumeric,
		Values: out,
	})
}

// opPivot spreads one column's values into output columns, aggregating
// the values column per (index, spread) pair. Index and spread values
// are sorted ascending so output layout is deterministic.
func (e *exec) opPivot(t *table.Table, op plan.Op) (*table.Table, error) {
	idxCol, _ := t.ColumnByName(op.Index)
	spreadCol, _ := t.ColumnByName(op.Columns[0])

	agg := op.Agg
	if agg == "" {
		agg = "sum"
	}

	idxVals, idxOf := distinctSorted(idxCol.Values)
	spreadVals, spreadOf := distinctSorted(spreadCol.Values)

	if len(spreadVals) > pivotMaxColumns {
		return nil, fmt.Errorf(
			"pivot would produce %d columns, the limit is %d",
			len(spreadVals), pivotMaxColumns,
		)
	}

	if e.maxRows > 0 && len(idxVals) > e.maxRows {
		return nil, fmt.Errorf(
			"pivot would produce %d rows, the limit is %d",
			len(idxVals), e.maxRows,
		)
	}

	// cell rows per (index, spread) bucket
	buckets := make([][][]int, len(idxVals))
	for i := range buckets {
		buckets[i] = make([][]int, len(spreadVals))
	}

	for r := 0; r < t.NumRows(); r++ {
		if err := e.poll(r); err != nil {
			return nil, err
		}

		i, iok := idxOf[groupKey([]any{idxCol.Values[r]})]
		j, jok := spreadOf[groupKey([]any{spreadCol.Values[r]})]

		if iok && jok {
			buckets[i][j] = append(buckets[i][j], r)
		}
	}

	valCol, _ := t.ColumnByName(op.Values)

	cols := make([]table.Column, 0, len(spreadVals)+1)
	cols = append(cols, table.Column{
		Name:   op.Index,
		Type:   idxCol.Type,
		Values: idxVals,
	})

	used := map[string]bool{op.Index: true}

	for j, sv := range spreadVals {
		values := make([]any, len(idxVals))

		for i := range idxVals {
			if len(buckets[i][j]) == 0 {
				continue
			}

			v, err := applyAgg(agg, valCol, buckets[i][j])
			if err != nil {
				return nil, err
			}

			values[i] = v
		}

		cols = append(cols, table.Column{
			Name:   uniqueName(table.FormatValue(sv), used),
			Type:   typeOfValues(values),
			Values: values,
		})
	}

	return table.New(cols)
}

// distinctSorted returns the distinct non-null values in ascending order
// along with a lookup from group key to position.
func distinctSorted(values []any) ([]any, map[string]int) {
	var distinct []any

	index := make(map[string]int)

	for _, v := range values {
		if v == nil {
			continue
		}

		k := groupKey([]any{v})
		if _, ok := index[k]; !ok {
			index[k] = 0
			distinct = append(distinct, v)
		}
	}

	sort.SliceStable(distinct, func(a, b int) bool {
		return table.Compare(distinct[a], distinct[b]) < 0
	})

	for i, v := range distinct {
		index[groupKey([]any{v})] = i
	}

	return distinct, index
}

func uniqueName(name string, used map[string]bool) string {
	if name == "" {
		name = "value"
	}

	for used[name] {
		name += "_"
	}

	used[name] = true

	return name
}

// opUnpivot folds the named columns into name/value row pairs, keeping
// the keep columns alongside.
func (e *exec) opUnpivot(t *table.Table, op plan.Op) (*table.Table, error) {
	n := t.NumRows() * len(op.Fold)
	if e.maxRows > 0 && n > e.maxRows {
		return nil, fmt.Errorf("unpivot would produce %d rows, the limit is %d", n, e.maxRows)
	}

	nameAs := op.NameAs
	if nameAs == "" {
		nameAs = "name"
	}

	valueAs := op.ValueAs
	if valueAs == "" {
		valueAs = "value"
	}

	cols := make([]table.Column, 0, len(op.Keep)+2)

	for _, keep := range op.Keep {
		src, _ := t.ColumnByName(keep)
		values := make([]any, 0, n)

		for r := 0; r < t.NumRows(); r++ {
			for range op.Fold {
				values = append(values, src.Values[r])
			}
		}

		cols = append(cols, table.Column{Name: keep, Type: src.Type, Values: values})
	}

	names := make([]any, 0, n)
	values := make([]any, 0, n)

	for r := 0; r < t.NumRows(); r++ {
		if err := e.poll(r); err != nil {
			return nil, err
		}

		for _, fold := range op.Fold {
			v, _ := t.CellByName(r, fold)
			names = append(names, fold)
			values = append(values, v)
		}
	}

	cols = append(cols,
		table.Column{Name: nameAs, Type: table.TypeText, Values: names},
		table.Column{Name: valueAs, Type: typeOfValues(values), Values: values},
	)

	return table.New(cols)
}

// runJoin joins two bound tables. Output layout is all left columns,
// then right columns minus the keys, with clashing right names given a
// _right suffix. Null keys never match.
func (e *exec) runJoin(left, right *table.Table, spec plan.JoinSpec) (*table.Table, error) {
	kind := spec.Kind
	if kind == "" {
		kind = plan.JoinInner
	}

	if kind == plan.JoinCross {
		n := left.NumRows() * right.NumRows()
		if e.maxRows > 0 && n > e.maxRows {
			return nil, fmt.Errorf(
				"cross join would produce %d rows, the limit is %d", n, e.maxRows,
			)
		}
	}

	pairs, err := e.joinPairs(left, right, spec.On, kind)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]bool, len(spec.On))
	for _, k := range spec.On {
		keys[k] = true
	}

	leftNames := make(map[string]bool, left.NumCols())
	for _, name := range left.ColumnNames() {
		leftNames[name] = true
	}

	cols := make([]table.Column, 0, left.NumCols()+right.NumCols())

	for c := 0; c < left.NumCols(); c++ {
		src := left.Column(c)
		values := make([]any, len(pairs))

		for i, p := range pairs {
			if p[0] >= 0 {
				values[i] = src.Values[p[0]]
			} else if keys[src.Name] && p[1] >= 0 {
				// Key columns take the right side's value for
				// right-only rows so the key is never lost.
				values[i], _ = right.CellByName(p[1], src.Name)
			}
		}

		cols = append(cols, table.Column{Name: src.Name, Type: src.Type, Values: values})
	}

	for c := 0; c < right.NumCols(); c++ {
		src := right.Column(c)
		if keys[src.Name] {
			continue
		}

		values := make([]any, len(pairs))

		for i, p := range pairs {
			if p[1] >= 0 {
				values[i] = src.Values[p[1]]
			}
		}

		name := src.Name
		if leftNames[name] {
			name += "_right"
		}

		cols = append(cols, table.Column{Name: name, Type: src.Type, Values: values})
	}

	return table.New(cols)
}

// joinPairs produces (left row, right row) index pairs, -1 marking the
// missing side of an unmatched row.
func (e *exec) joinPairs(left, right *table.Table, on []string, kind string) ([][2]int, error) {
	var pairs [][2]int

	appendPair := func(l, r int) error {
		if e.maxRows > 0 && len(pairs) >= e.maxRows {
			return fmt.Errorf(
				"join would produce more than %d rows, the limit is %d",
				e.maxRows, e.maxRows,
			)
		}

		pairs = append(pairs, [2]int{l, r})

		return nil
	}

	if kind == plan.JoinCross {
		for l := 0; l < left.NumRows(); l++ {
			if err := e.poll(l); err != nil {
				return nil, err
			}

			for r := 0; r < right.NumRows(); r++ {
				if err := appendPair(l, r); err != nil {
					return nil, err
				}
			}
		}

		return pairs, nil
	}

	rightIndex := make(map[string][]int)
	rightKeys := make([]string, right.NumRows())

	for r := 0; r < right.NumRows(); r++ {
		if err := e.poll(r); err != nil {
			return nil, err
		}

		key, ok := joinKey(right, r, on)
		if !ok {
			continue
		}

		rightKeys[r] = key
		rightIndex[key] = append(rightIndex[key], r)
	}

	matchedRight := make(map[int]bool)

	scanLeft := func(keep bool) error {
		for l := 0; l < left.NumRows(); l++ {
			if err := e.poll(l); err != nil {
				return err
			}

			key, ok := joinKey(left, l, on)

			matches := rightIndex[key]
			if !ok {
				matches = nil
			}

			if len(matches) == 0 {
				if keep {
					if err := appendPair(l, -1); err != nil {
						return err
					}
				}

				continue
			}

			for _, r := range matches {
				matchedRight[r] = true

				if err := appendPair(l, r); err != nil {
					return err
				}
			}
		}

		return nil
	}

	switch kind {
	case plan.JoinInner:
		if err := scanLeft(false); err != nil {
			return nil, err
		}
	case plan.JoinLeft:
		if err := scanLeft(true); err != nil {
			return nil, err
		}
	case plan.JoinRight, plan.JoinOuter:
		if err := scanLeft(kind == plan.JoinOuter); err != nil {
			return nil, err
		}

		for r := 0; r < right.NumRows(); r++ {
			if rightKeys[r] != "" && matchedRight[r] {
				continue
			}

			if err := appendPair(-1, r); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unknown join kind %q", kind)
	}

	return pairs, nil
}

func joinKey(t *table.Table, row int, on []string) (string, bool) {
	key := make([]any, len(on))

	for i, name := range on {
		v, _ := t.CellByName(row, name)
		if v == nil {
			return "", false
		}

		key[i] = v
	}

	return groupKey(key), true
}

// withColumn returns t with the column appended, or replaced in place if
// a column of that name already exists.
func withColumn(t *table.Table, col table.Column) (*table.Table, error) {
	cols := make([]table.Column, 0, t.NumCols()+1)
	replaced := false

	for c := 0; c < t.NumCols(); c++ {
		existing := t.Column(c)
		if existing.Name == col.Name {
			cols = append(cols, col)
			replaced = true
		} else {
			cols = append(cols, existing)
		}
	}

	if !replaced {
		cols = append(cols, col)
	}

	return table.New(cols)
}

// typeOfValues infers a column type from computed values. Mixed kinds
// degrade to text.
func typeOfValues(values []any) table.Type {
	var hasNum, hasStr, hasBool, hasTime bool

	for _, v := range values {
		switch v.(type) {
		case nil:
		case float64:
			hasNum = true
		case string:
			hasStr = true
		case bool:
			hasBool = true
		default:
			hasTime = true
		}
	}

	switch {
	case hasNum && !hasStr && !hasBool && !hasTime:
		return table.TypeNumeric
	case hasBool && !hasStr && !hasNum && !hasTime:
		return table.TypeBoolean
	case hasTime && !hasStr && !hasNum && !hasBool:
		return table.TypeTemporal
	default:
		return table.TypeText
	}
}
