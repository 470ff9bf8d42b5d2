package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tabiq-dev/tabiq/internal/logging"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// LoadCSVFile reads a delimited file without DuckDB. The first record
// is the header; cell types are inferred per column.
func LoadCSVFile(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		r.Comma = '\t'
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header row", path)
	}

	names := uniqueHeader(records[0])
	rows := records[1:]

	cols := make([]table.Column, len(names))

	for i, name := range names {
		raw := make([]string, len(rows))
		for j, rec := range rows {
			raw[j] = rec[i]
		}

		col, fellBack := table.BuildColumn(name, raw)
		if fellBack {
			logging.Debugf("column %q has mixed cell types, kept as text", name)
		}

		cols[i] = col
	}

	return table.New(cols)
}

// LoadJSONFile reads either a JSON array of objects or newline-delimited
// objects. Column order follows the first record, with keys seen only in
// later records appended alphabetically.
func LoadJSONFile(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	records, keyOrder, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	names := keyOrder
	seen := make(map[string]bool, len(names))

	for _, k := range names {
		seen[k] = true
	}

	var extras []string

	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true

				extras = append(extras, k)
			}
		}
	}

	sort.Strings(extras)
	names = append(names, extras...)

	if len(names) == 0 {
		return nil, fmt.Errorf("%s has no fields", path)
	}

	cols := make([]table.Column, len(names))

	for i, name := range names {
		values := make([]any, len(records))
		for j, rec := range records {
			values[j] = normalizeJSONCell(rec[name])
		}

		cols[i] = buildJSONColumn(name, values)
	}

	return table.New(table.RefineColumns(cols))
}

func decodeRecords(data []byte) ([]map[string]any, []string, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, nil, fmt.Errorf("file is empty")
	}

	if trimmed[0] == '[' {
		var records []map[string]any
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, nil, fmt.Errorf("expected an array of objects: %w", err)
		}

		return records, firstObjectKeys(trimmed), nil
	}

	// Newline-delimited objects
	var (
		records  []map[string]any
		keyOrder []string
	)

	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, fmt.Errorf("expected one object per line: %w", err)
		}

		if records == nil {
			keyOrder = objectKeys(json.NewDecoder(bytes.NewReader(line)))
		}

		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, nil, fmt.Errorf("file has no records")
	}

	return records, keyOrder, nil
}

// firstObjectKeys walks the token stream of an array of objects and
// returns the keys of the first object in document order, which the
// decoded maps cannot preserve.
func firstObjectKeys(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil
	}

	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil
	}

	return objectKeys(dec)
}

// objectKeys consumes one object from the decoder and returns its keys
// in order, skipping nested values.
func objectKeys(dec *json.Decoder) []string {
	tok, err := dec.Token()
	if err != nil {
		return nil
	}

	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}

	var keys []string

	depth := 0
	isKey := true

	for {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}

		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				if depth == 0 {
					return keys
				}

				depth--
				if depth == 0 {
					isKey = true
				}
			}

			continue
		}

		if depth > 0 {
			continue
		}

		if isKey {
			if s, ok := tok.(string); ok {
				keys = append(keys, s)
			}

			isKey = false
		} else {
			isKey = true
		}
	}
}

// normalizeJSONCell keeps scalar kinds and flattens nested structures
// to their JSON text.
func normalizeJSONCell(v any) any {
	switch x := v.(type) {
	case nil, float64, string, bool:
		return x
	default:
		encoded, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}

		return string(encoded)
	}
}

// buildJSONColumn types a decoded column. String-only columns go back
// through the text inference path so dates and null words are picked up.
func buildJSONColumn(name string, values []any) table.Column {
	allStrings := true

	for _, v := range values {
		if v == nil {
			continue
		}

		if _, ok := v.(string); !ok {
			allStrings = false
			break
		}
	}

	if allStrings {
		raw := make([]string, len(values))
		for i, v := range values {
			if s, ok := v.(string); ok {
				raw[i] = s
			}
		}

		col, _ := table.BuildColumn(name, raw)

		return col
	}

	return table.Column{Name: name, Type: typeFromCells(values), Values: values}
}

// typeFromCells infers a column type from already-decoded cells: a
// single non-null kind names the type, anything mixed is text.
func typeFromCells(values []any) table.Type {
	var typ table.Type

	for _, v := range values {
		var t table.Type

		switch v.(type) {
		case nil:
			continue
		case float64:
			t = table.TypeNumeric
		case bool:
			t = table.TypeBoolean
		case time.Time:
			t = table.TypeTemporal
		default:
			t = table.TypeText
		}

		if typ == "" {
			typ = t
		} else if typ != t {
			return table.TypeText
		}
	}

	if typ == "" {
		return table.TypeText
	}

	return typ
}

// uniqueHeader fills in blank header cells and de-duplicates repeats
func uniqueHeader(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]int, len(header))

	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}

		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}

		names[i] = name
	}

	return names
}
