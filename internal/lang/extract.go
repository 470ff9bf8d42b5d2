package lang

import (
	"regexp"
	"strings"
)

// EntitySet holds everything the extractor pulled out of a query
type EntitySet struct {
	Columns    []string `json:"columns"`
	Values     []string `json:"values"`
	Operations []string `json:"operations"`
	Conditions []string `json:"conditions"`
}

// Empty reports whether extraction found nothing at all
func (e EntitySet) Empty() bool {
	return len(e.Columns) == 0 && len(e.Values) == 0 &&
		len(e.Operations) == 0 && len(e.Conditions) == 0
}

// HasOperation reports whether a comparison operation was detected
func (e EntitySet) HasOperation(op string) bool {
	for _, o := range e.Operations {
		if o == op {
			return true
		}
	}

	return false
}

// Comparison operations and the surface forms that trigger them. Order
// matters: detected operations are reported in this order.
var operationForms = []keywordGroup{
	{"equals", []string{"equals", "is", "=", "=="}},
	{"greater_than", []string{"greater than", "more than", "above", ">"}},
	{"less_than", []string{"less than", "below", "under", "<"}},
	{"contains", []string{"contains", "includes", "has", "with"}},
	{"not_equals", []string{"not", "isn't", "not equal", "!="}},
	{"is_null", []string{"null", "empty", "missing", "blank"}},
	{"not_null", []string{"not null", "not empty", "has value"}},
}

var (
	numericValuePattern = regexp.MustCompile(`\b\d+\.?\d*\b`)
	quotedValuePattern  = regexp.MustCompile(`["']([^"']+)["']`)
)

// Extract pulls column references, comparison operations, and literal
// values out of a query. Column matching tries both the raw name and the
// name with underscores replaced by spaces, so "show total amount" hits a
// total_amount column. Values are numeric tokens plus quoted strings, in
// that order, kept as written.
func Extract(query string, availableColumns []string) EntitySet {
	entities := EntitySet{}
	lower := strings.ToLower(query)

	for _, col := range availableColumns {
		variations := []string{
			strings.ToLower(col),
			strings.ToLower(strings.ReplaceAll(col, "_", " ")),
		}

		for _, variation := range variations {
			if strings.Contains(lower, variation) {
				entities.Columns = append(entities.Columns, col)
				break
			}
		}
	}

	for _, op := range operationForms {
		for _, form := range op.keywords {
			if strings.Contains(lower, form) {
				entities.Operations = append(entities.Operations, op.name)
				break
			}
		}
	}

	entities.Values = append(entities.Values, numericValuePattern.FindAllString(query, -1)...)

	for _, m := range quotedValuePattern.FindAllStringSubmatch(query, -1) {
		entities.Values = append(entities.Values, m[1])
	}

	return entities
}
