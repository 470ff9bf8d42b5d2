package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts tried when parsing a temporal cell, most specific first
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

const (
	// Text columns with at most this many distinct values, and a
	// distinct-to-total ratio at or below categoricalRatio, are promoted
	// to categorical.
	categoricalDistinctMax = 20
	categoricalRatio       = 0.5
)

// ParseTime parses a string using the known temporal layouts
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y":
		return true, true
	case "false", "f", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}

	return f, true
}

func isNull(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "na", "n/a", "nan", "none":
		return true
	default:
		return false
	}
}

// InferType determines the best type for a column of raw string values.
// The winner is the most specific type that every non-null value parses
// as. Columns with no non-null values are text.
func InferType(values []string) Type {
	seen := false
	isBool := true
	isNum := true
	isTime := true

	for _, s := range values {
		if isNull(s) {
			continue
		}

		seen = true

		if isBool {
			_, isBool = parseBool(s)
		}

		if isNum {
			_, isNum = parseNumber(s)
		}

		if isTime {
			_, isTime = ParseTime(s)
		}

		if !isBool && !isNum && !isTime {
			return TypeText
		}
	}

	if !seen {
		return TypeText
	}

	switch {
	case isBool:
		return TypeBoolean
	case isNum:
		return TypeNumeric
	case isTime:
		return TypeTemporal
	default:
		return TypeText
	}
}

// ParseAs converts one raw string value to the cell representation of the
// given type. Nulls convert to nil for every type. A value that does not
// parse is an explicit error, never a silent zero.
func ParseAs(s string, t Type) (any, error) {
	if isNull(s) {
		return nil, nil
	}

	switch t {
	case TypeNumeric:
		f, ok := parseNumber(s)
		if !ok {
			return nil, fmt.Errorf("value %q is not numeric", s)
		}

		return f, nil
	case TypeBoolean:
		b, ok := parseBool(s)
		if !ok {
			return nil, fmt.Errorf("value %q is not boolean", s)
		}

		return b, nil
	case TypeTemporal:
		tv, ok := ParseTime(s)
		if !ok {
			return nil, fmt.Errorf("value %q is not a timestamp", s)
		}

		return tv, nil
	default:
		return s, nil
	}
}

// BuildColumn infers a type for raw string values and converts them. When
// any value fails to convert under the inferred type the whole column
// falls back to text, and the returned fallback flag is set so the caller
// can surface the downgrade.
func BuildColumn(name string, raw []string) (Column, bool) {
	inferred := InferType(raw)

	values := make([]any, len(raw))

	for i, s := range raw {
		v, err := ParseAs(s, inferred)
		if err != nil {
			return buildTextColumn(name, raw), true
		}

		values[i] = v
	}

	col := Column{Name: name, Type: inferred, Values: values}
	if inferred == TypeText {
		col.Type = refineTextType(values)
	}

	return col, false
}

func buildTextColumn(name string, raw []string) Column {
	values := make([]any, len(raw))

	for i, s := range raw {
		if isNull(s) {
			values[i] = nil
		} else {
			values[i] = s
		}
	}

	return Column{Name: name, Type: refineTextType(values), Values: values}
}

// refineTextType promotes low-cardinality text to categorical
func refineTextType(values []any) Type {
	distinct := make(map[string]struct{})
	total := 0

	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}

		total++
		distinct[s] = struct{}{}
	}

	if total == 0 {
		return TypeText
	}

	ratio := float64(len(distinct)) / float64(total)
	if len(distinct) <= categoricalDistinctMax && ratio <= categoricalRatio {
		return TypeCategorical
	}

	return TypeText
}

// RefineColumns re-runs categorical promotion over already-typed columns,
// used after loading through a path that reports plain text types.
func RefineColumns(cols []Column) []Column {
	for i, col := range cols {
		if col.Type == TypeText {
			cols[i].Type = refineTextType(col.Values)
		}
	}

	return cols
}
