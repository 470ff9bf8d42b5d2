package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/tabiq-dev/tabiq/internal/table"
)

// DuckDBLoader reads files through an in-memory DuckDB instance, which
// gives us format sniffing, compressed input, and parquet support.
type DuckDBLoader struct {
	db *sql.DB
}

// NewDuckDBLoader opens an in-memory database and verifies the driver
// actually works, so callers can fall back early.
func NewDuckDBLoader() (*DuckDBLoader, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	return &DuckDBLoader{db: db}, nil
}

// Close releases the database handle
func (l *DuckDBLoader) Close() error {
	return l.db.Close()
}

// Load reads one file into a table. The reader function is chosen by
// extension; DuckDB sniffs delimiters, headers, and cell types itself.
func (l *DuckDBLoader) Load(ctx context.Context, path string) (*table.Table, error) {
	reader, err := readerFor(path)
	if err != nil {
		return nil, err
	}

	// Table functions do not take placeholders, so the path is embedded
	// as an escaped string literal.
	query := fmt.Sprintf("SELECT * FROM %s('%s')", reader, strings.ReplaceAll(path, "'", "''"))

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	values := make([][]any, len(names))

	dest := make([]any, len(names))
	ptrs := make([]any, len(names))

	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, v := range dest {
			values[i] = append(values[i], normalizeCell(v))
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cols := make([]table.Column, len(names))

	for i, name := range names {
		typ := duckType(colTypes[i].DatabaseTypeName())
		if typ == table.TypeText {
			typ = typeFromCells(values[i])
		}

		cols[i] = table.Column{Name: name, Type: typ, Values: values[i]}
	}

	return table.New(table.RefineColumns(cols))
}

func readerFor(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv":
		return "read_csv_auto", nil
	case ".json", ".ndjson":
		return "read_json_auto", nil
	case ".parquet":
		return "read_parquet", nil
	default:
		return "", fmt.Errorf("no duckdb reader for %q files", ext)
	}
}

// duckType maps a DuckDB column type name onto our coarser type system
func duckType(dbType string) table.Type {
	t := strings.ToUpper(dbType)

	switch {
	case strings.Contains(t, "INT"),
		strings.Contains(t, "DECIMAL"),
		strings.Contains(t, "NUMERIC"),
		t == "DOUBLE", t == "FLOAT", t == "REAL":
		return table.TypeNumeric
	case strings.HasPrefix(t, "TIMESTAMP"), t == "DATE", t == "DATETIME":
		return table.TypeTemporal
	case t == "BOOLEAN", t == "BOOL":
		return table.TypeBoolean
	default:
		return table.TypeText
	}
}

// normalizeCell collapses driver scan types onto the cell kinds the
// rest of the system understands: nil, float64, string, bool, time.Time.
func normalizeCell(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		return x
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}
