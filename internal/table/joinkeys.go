package table

import "strings"

// Named pairs a table with the name it is addressed by in a query
type Named struct {
	Name  string
	Table *Table
}

// Identifier-looking column name fragments, checked in order
var keyPatterns = []string{"id", "key", "code", "number"}

// KeyDetection is the outcome of join-key auto-detection across a set of
// tables.
type KeyDetection struct {
	// Key is the chosen join column, empty when no column is shared
	Key string
	// Common lists columns present in at least two tables, in the order
	// they were first seen.
	Common []string
	// Likely lists the common columns whose names look like identifiers
	Likely []string
	// Pairs maps "left_right" table-name pairs to the chosen key, one
	// entry per consecutive pair.
	Pairs map[string]string
}

// DetectJoinKeys finds a join column shared across tables. Columns whose
// names contain an identifier fragment (id, key, code, number) win over
// other shared columns; within a group the first seen wins, so detection
// is deterministic for a given table order.
func DetectJoinKeys(tables []Named) KeyDetection {
	det := KeyDetection{Pairs: map[string]string{}}
	if len(tables) < 2 {
		return det
	}

	counts := make(map[string]int)
	var order []string

	for _, nt := range tables {
		if nt.Table == nil {
			continue
		}

		for _, name := range nt.Table.ColumnNames() {
			if counts[name] == 0 {
				order = append(order, name)
			}

			counts[name]++
		}
	}

	for _, name := range order {
		if counts[name] >= 2 {
			det.Common = append(det.Common, name)
		}
	}

	for _, name := range det.Common {
		lower := strings.ToLower(name)
		for _, pattern := range keyPatterns {
			if strings.Contains(lower, pattern) {
				det.Likely = append(det.Likely, name)
				break
			}
		}
	}

	switch {
	case len(det.Likely) > 0:
		det.Key = det.Likely[0]
	case len(det.Common) > 0:
		det.Key = det.Common[0]
	default:
		return det
	}

	for i := 0; i < len(tables)-1; i++ {
		det.Pairs[tables[i].Name+"_"+tables[i+1].Name] = det.Key
	}

	return det
}

// SharedColumns returns the columns two tables have in common, in the
// left table's order.
func SharedColumns(left, right *Table) []string {
	var shared []string

	for _, name := range left.ColumnNames() {
		if right.HasColumn(name) {
			shared = append(shared, name)
		}
	}

	return shared
}
