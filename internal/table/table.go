package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Type is the inferred type of a column. Cell values are one of: nil
// (null), float64, string, bool, or time.Time; Type records how the
// column as a whole should be interpreted.
type Type string

const (
	TypeNumeric     Type = "numeric"
	TypeText        Type = "text"
	TypeTemporal    Type = "temporal"
	TypeBoolean     Type = "boolean"
	TypeCategorical Type = "categorical"
)

// Column is a named, typed value vector. All columns of a table have the
// same length.
type Column struct {
	Name   string
	Type   Type
	Values []any
}

// Table is an immutable in-memory relation. Operations never mutate a
// table in place; they build a new one.
type Table struct {
	cols   []Column
	byName map[string]int
	rows   int
}

// ColumnSchema describes one column for schema reporting
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema describes a table's shape without its data
type Schema struct {
	Columns  []ColumnSchema `json:"columns"`
	RowCount int            `json:"row_count"`
}

// New builds a table from columns, validating that names are unique and
// non-empty and that all columns have equal length.
func New(cols []Column) (*Table, error) {
	byName := make(map[string]int, len(cols))
	rows := 0

	for i, col := range cols {
		if col.Name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}

		if _, dup := byName[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column name: %s", col.Name)
		}

		byName[col.Name] = i

		if i == 0 {
			rows = len(col.Values)
		} else if len(col.Values) != rows {
			return nil, fmt.Errorf(
				"column %s has %d values, expected %d",
				col.Name, len(col.Values), rows,
			)
		}
	}

	return &Table{cols: cols, byName: byName, rows: rows}, nil
}

// MustNew is New for construction from code paths that control their
// inputs, primarily tests and derived-table builders.
func MustNew(cols []Column) *Table {
	t, err := New(cols)
	if err != nil {
		panic(err)
	}

	return t
}

// Empty returns a zero-row table with the given column schemas
func Empty(schemas []ColumnSchema) *Table {
	cols := make([]Column, len(schemas))
	for i, s := range schemas {
		cols[i] = Column{Name: s.Name, Type: Type(s.Type), Values: nil}
	}

	t, err := New(cols)
	if err != nil {
		// Duplicate names in a schema are a caller bug.
		panic(err)
	}

	return t
}

// NumRows returns the row count
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the column count
func (t *Table) NumCols() int { return len(t.cols) }

// ColumnNames returns the ordered column names
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, col := range t.cols {
		names[i] = col.Name
	}

	return names
}

// ColumnIndex returns the position of a named column
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// HasColumn reports whether a column exists
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Column returns the column at position i
func (t *Table) Column(i int) Column { return t.cols[i] }

// ColumnByName returns the named column
func (t *Table) ColumnByName(name string) (Column, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Column{}, false
	}

	return t.cols[i], true
}

// ColumnType returns the inferred type of a named column, or "" if absent
func (t *Table) ColumnType(name string) Type {
	i, ok := t.byName[name]
	if !ok {
		return ""
	}

	return t.cols[i].Type
}

// Cell returns the value at (row, col position)
func (t *Table) Cell(row, col int) any {
	return t.cols[col].Values[row]
}

// CellByName returns the value at (row, column name)
func (t *Table) CellByName(row int, name string) (any, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}

	return t.cols[i].Values[row], true
}

// Row returns one row as a value slice in column order
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.cols))
	for c := range t.cols {
		row[c] = t.cols[c].Values[i]
	}

	return row
}

// RowMap returns one row as a name-keyed map
func (t *Table) RowMap(i int) map[string]any {
	row := make(map[string]any, len(t.cols))
	for _, col := range t.cols {
		row[col.Name] = col.Values[i]
	}

	return row
}

// SchemaOf reports the table's schema
func SchemaOf(t *Table) Schema {
	cols := make([]ColumnSchema, t.NumCols())
	for i, col := range t.cols {
		cols[i] = ColumnSchema{Name: col.Name, Type: string(col.Type)}
	}

	return Schema{Columns: cols, RowCount: t.rows}
}

// SampleStrings returns up to n non-null cell values of a column rendered
// as strings, used by value-based heuristics such as date detection.
func (t *Table) SampleStrings(name string, n int) []string {
	col, ok := t.ColumnByName(name)
	if !ok {
		return nil
	}

	samples := make([]string, 0, n)

	for _, v := range col.Values {
		if v == nil {
			continue
		}

		samples = append(samples, FormatValue(v))
		if len(samples) >= n {
			break
		}
	}

	return samples
}

// NumericColumns returns the names of numeric columns in order
func (t *Table) NumericColumns() []string {
	var names []string

	for _, col := range t.cols {
		if col.Type == TypeNumeric {
			names = append(names, col.Name)
		}
	}

	return names
}

// TemporalColumns returns the names of temporal columns in order
func (t *Table) TemporalColumns() []string {
	var names []string

	for _, col := range t.cols {
		if col.Type == TypeTemporal {
			names = append(names, col.Name)
		}
	}

	return names
}

// Select returns a derived table with the named columns in the given order
func (t *Table) Select(names []string) (*Table, error) {
	cols := make([]Column, 0, len(names))

	for _, name := range names {
		col, ok := t.ColumnByName(name)
		if !ok {
			return nil, fmt.Errorf("column not found: %s", name)
		}

		cols = append(cols, col)
	}

	return New(cols)
}

// Gather returns a derived table containing the given row indices, in order
func (t *Table) Gather(indices []int) *Table {
	cols := make([]Column, len(t.cols))

	for c, col := range t.cols {
		values := make([]any, len(indices))
		for i, idx := range indices {
			values[i] = col.Values[idx]
		}

		cols[c] = Column{Name: col.Name, Type: col.Type, Values: values}
	}

	return MustNew(cols)
}

// Head returns a derived table with the first n rows
func (t *Table) Head(n int) *Table {
	if n >= t.rows {
		n = t.rows
	}

	if n < 0 {
		n = 0
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	return t.Gather(indices)
}

// Slice returns a derived table with rows [offset, offset+n)
func (t *Table) Slice(offset, n int) *Table {
	if offset < 0 {
		offset = 0
	}

	if offset > t.rows {
		offset = t.rows
	}

	end := offset + n
	if n < 0 || end > t.rows {
		end = t.rows
	}

	indices := make([]int, 0, end-offset)
	for i := offset; i < end; i++ {
		indices = append(indices, i)
	}

	return t.Gather(indices)
}

// MemSize estimates the in-memory footprint of the table in bytes. The
// estimate drives cache admission and the optimization advisor, not
// allocation accounting.
func (t *Table) MemSize() int64 {
	var size int64

	for _, col := range t.cols {
		switch col.Type {
		case TypeNumeric:
			size += int64(len(col.Values)) * 8
		case TypeBoolean:
			size += int64(len(col.Values))
		case TypeTemporal:
			size += int64(len(col.Values)) * 24
		default:
			for _, v := range col.Values {
				if s, ok := v.(string); ok {
					size += int64(len(s)) + 16
				} else {
					size += 16
				}
			}
		}
	}

	return size
}

// AsFloat coerces a cell value to float64
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}

		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}

		return f, true
	case time.Time:
		return float64(x.Unix()), true
	default:
		return 0, false
	}
}

// AsTime coerces a cell value to time.Time
func AsTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// FormatValue renders a cell value for display and CSV output. Whole
// numbers print without a decimal point; date-only timestamps print as
// dates.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', 0, 64)
		}

		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}

		return x.Format(time.RFC3339)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Compare orders two cell values of the same column. Nulls sort first;
// mismatched kinds fall back to string comparison.
func Compare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}

	if a == nil {
		return -1
	}

	if b == nil {
		return 1
	}

	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	af, aok := AsFloat(a)
	bf, bok := AsFloat(b)

	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(FormatValue(a), FormatValue(b))
}

// Equal reports whether two cell values are equal under Compare
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}
