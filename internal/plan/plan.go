// Package plan defines the operation-plan document that query synthesis
// produces and the executor runs. A plan is a JSON array of steps; each
// step reads a table, applies a fixed vocabulary of operations, and binds
// the outcome to a name. Free-form program text is never interpreted;
// anything that does not decode into this structure is rejected before
// execution.
package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Comparison operators usable in a filter op
const (
	CmpEquals      = "equals"
	CmpNotEquals   = "not_equals"
	CmpGreaterThan = "greater_than"
	CmpLessThan    = "less_than"
	CmpContains    = "contains"
	CmpIsNull      = "is_null"
	CmpNotNull     = "not_null"
)

// Op kinds
const (
	OpFilter    = "filter"
	OpSelect    = "select"
	OpDerive    = "derive"
	OpSort      = "sort"
	OpLimit     = "limit"
	OpAggregate = "aggregate"
	OpSummarize = "summarize"
	OpWindow    = "window"
	OpRolling   = "rolling"
	OpPctChange = "pct_change"
	OpPivot     = "pivot"
	OpUnpivot   = "unpivot"
)

// Window functions
const (
	WinRowNumber = "row_number"
	WinRank      = "rank"
	WinDenseRank = "dense_rank"
	WinLag       = "lag"
	WinLead      = "lead"
	WinCumsum    = "cumsum"
)

// Join kinds
const (
	JoinInner = "inner"
	JoinLeft  = "left"
	JoinRight = "right"
	JoinOuter = "outer"
	JoinCross = "cross"
)

// The binding name the final step of a runnable plan must produce
const ResultBinding = "result"

var (
	cmpVocabulary = map[string]bool{
		CmpEquals: true, CmpNotEquals: true, CmpGreaterThan: true,
		CmpLessThan: true, CmpContains: true, CmpIsNull: true, CmpNotNull: true,
	}

	aggFns = map[string]bool{
		"count": true, "sum": true, "mean": true, "min": true, "max": true,
		"median": true, "std": true, "count_distinct": true,
	}

	// Aggregate functions that only make sense on numeric columns
	numericAggFns = map[string]bool{
		"sum": true, "mean": true, "median": true, "std": true,
	}

	windowFns = map[string]bool{
		WinRowNumber: true, WinRank: true, WinDenseRank: true,
		WinLag: true, WinLead: true, WinCumsum: true,
	}

	rollingFns = map[string]bool{"mean": true, "sum": true}

	pivotAggs = map[string]bool{
		"sum": true, "mean": true, "count": true, "min": true, "max": true,
	}

	joinKinds = map[string]bool{
		JoinInner: true, JoinLeft: true, JoinRight: true,
		JoinOuter: true, JoinCross: true,
	}
)

// Program is an ordered list of plan steps
type Program []Step

// Step reads from a source, applies ops, and binds the outcome
type Step struct {
	Bind string    `json:"bind"`
	From string    `json:"from,omitempty"`
	Join *JoinSpec `json:"join,omitempty"`
	Ops  []Op      `json:"ops"`
}

// JoinSpec describes a two-table join source
type JoinSpec struct {
	Left  string     `json:"left"`
	Right string     `json:"right"`
	On    StringList `json:"on,omitempty"`
	Kind  string     `json:"kind,omitempty"`
}

// Op is one operation. The Kind field selects which of the remaining
// fields apply; unused fields stay zero and are omitted when encoding.
type Op struct {
	Kind string `json:"op"`

	// filter
	Cmp   string          `json:"cmp,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Where string          `json:"where,omitempty"`

	// filter, derive, window, rolling, pct_change target column
	Column string `json:"column,omitempty"`

	// select; for pivot, the single column whose values spread into
	// new columns.
	Columns StringList `json:"columns,omitempty"`

	// derive expression
	Expr string `json:"expr,omitempty"`

	// sort
	By SortKeys `json:"by,omitempty"`

	// limit
	N      int `json:"n,omitempty"`
	Offset int `json:"offset,omitempty"`

	// aggregate
	GroupBy StringList `json:"group_by,omitempty"`
	Aggs    []Agg      `json:"aggs,omitempty"`

	// window, rolling, pivot aggregation function
	Fn          string     `json:"fn,omitempty"`
	PartitionBy StringList `json:"partition_by,omitempty"`
	OrderBy     SortKeys   `json:"order_by,omitempty"`
	As          string     `json:"as,omitempty"`

	// rolling
	Window int `json:"window,omitempty"`

	// pct_change
	Periods int `json:"periods,omitempty"`

	// pivot
	Index  string `json:"index,omitempty"`
	Values string `json:"values,omitempty"`
	Agg    string `json:"agg,omitempty"`

	// unpivot
	Keep    StringList `json:"keep,omitempty"`
	Fold    StringList `json:"fold,omitempty"`
	NameAs  string     `json:"name_as,omitempty"`
	ValueAs string     `json:"value_as,omitempty"`
}

// Agg is one aggregation inside an aggregate op
type Agg struct {
	Column string `json:"column,omitempty"`
	Fn     string `json:"fn"`
	As     string `json:"as,omitempty"`
}

// OutName returns the output column name of an aggregation
func (a Agg) OutName() string {
	if a.As != "" {
		return a.As
	}

	if a.Column == "" {
		return a.Fn
	}

	return a.Column + "_" + a.Fn
}

// SortKey orders rows by one column
type SortKey struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// SortKeys decodes either a list of sort objects or bare column name
// strings, which some model outputs use.
type SortKeys []SortKey

func (s *SortKeys) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	keys := make([]SortKey, 0, len(raw))

	for _, item := range raw {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			var col string
			if err := json.Unmarshal(item, &col); err != nil {
				return err
			}

			keys = append(keys, SortKey{Column: col})

			continue
		}

		var key SortKey
		if err := json.Unmarshal(item, &key); err != nil {
			return err
		}

		keys = append(keys, key)
	}

	*s = keys

	return nil
}

// StringList decodes either a JSON array of strings or a single bare
// string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*l = StringList{s}

		return nil
	}

	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	*l = items

	return nil
}

// DecodedValue returns the filter comparison value as a Go value: nil,
// float64, string, or bool.
func (o Op) DecodedValue() (any, error) {
	if len(o.Value) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(o.Value, &v); err != nil {
		return nil, fmt.Errorf("invalid filter value: %w", err)
	}

	return v, nil
}

// JSONValue encodes a Go value for use as an op's comparison value
func JSONValue(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Only marshalable primitives reach this.
		panic(err)
	}

	return data
}

// Parse decodes plan text. Unknown fields anywhere in the document are
// rejected, as is anything that is not a non-empty JSON array of steps.
func Parse(text string) (Program, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty program")
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var prog Program
	if err := dec.Decode(&prog); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	// Reject trailing garbage after the array.
	if dec.More() {
		return nil, fmt.Errorf("parse plan: unexpected trailing content")
	}

	if len(prog) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}

	return prog, nil
}

// Encode renders a program in its canonical single-line JSON form
func Encode(p Program) string {
	data, err := json.Marshal(p)
	if err != nil {
		// Programs are built from marshalable fields only.
		panic(err)
	}

	return string(data)
}

// EncodeIndent renders a program with indentation for display
func EncodeIndent(p Program) string {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		panic(err)
	}

	return string(data)
}

// BindsResult reports whether any step binds the result name
func (p Program) BindsResult() bool {
	for _, step := range p {
		if step.Bind == ResultBinding {
			return true
		}
	}

	return false
}

func validIdent(name string) bool {
	if name == "" {
		return false
	}

	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}

	return true
}
