package sandbox

import (
	"fmt"
	"strings"
	"time"

	smath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/tabiq-dev/tabiq/internal/table"
)

// The only library handles reachable from an expression. No filesystem,
// network, or process access exists in this environment.
var exprPredeclared = starlark.StringDict{
	"math": smath.Module,
	"time": startime.Module,
}

// Names that cannot double as column parameters
var reservedIdents = map[string]bool{
	"row": true, "math": true, "time": true,
	"and": true, "or": true, "not": true, "if": true, "else": true,
	"elif": true, "for": true, "in": true, "def": true, "return": true,
	"lambda": true, "load": true, "pass": true, "break": true,
	"continue": true, "True": true, "False": true, "None": true,
}

// compiledExpr is a single row expression compiled to a Starlark
// function. Columns with identifier-safe names are passed as named
// parameters; every column is also reachable through the row dict.
type compiledExpr struct {
	fn       starlark.Value
	source   string
	colNames []string
	colIdx   []int
}

func validColumnIdent(name string) bool {
	if name == "" || reservedIdents[name] {
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

// compileExpr wraps a single expression in a function definition and
// compiles it. Wrapping inside return(...) means statements, multiple
// lines, and load() all fail to parse, so only expressions get through.
func compileExpr(thread *starlark.Thread, src string, t *table.Table) (*compiledExpr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}

	if strings.ContainsAny(src, "\n\r") {
		return nil, fmt.Errorf("expression must be a single line")
	}

	ce := &compiledExpr{source: src}
	params := []string{"row"}

	for i, name := range t.ColumnNames() {
		if validColumnIdent(name) {
			params = append(params, name)
			ce.colNames = append(ce.colNames, name)
			ce.colIdx = append(ce.colIdx, i)
		}
	}

	def := fmt.Sprintf("def __expr__(%s):\n    return (%s)\n",
		strings.Join(params, ", "), src)

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread,
		"<expr>", def, exprPredeclared)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}

	fn, ok := globals["__expr__"]
	if !ok {
		return nil, fmt.Errorf("compile expression %q: no function produced", src)
	}

	ce.fn = fn

	return ce, nil
}

// evalRow evaluates the expression against one row
func (ce *compiledExpr) evalRow(thread *starlark.Thread, t *table.Table, row int) (starlark.Value, error) {
	rowDict := starlark.NewDict(t.NumCols())

	for _, name := range t.ColumnNames() {
		v, _ := t.CellByName(row, name)
		if err := rowDict.SetKey(starlark.String(name), toStarlark(v)); err != nil {
			return nil, err
		}
	}

	args := make(starlark.Tuple, 0, len(ce.colIdx)+1)
	args = append(args, rowDict)

	for _, idx := range ce.colIdx {
		args = append(args, toStarlark(t.Cell(row, idx)))
	}

	out, err := starlark.Call(thread, ce.fn, args, nil)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", row, err)
	}

	return out, nil
}

// evalBool evaluates the expression against one row as a predicate,
// using truthiness for non-bool results.
func (ce *compiledExpr) evalBool(thread *starlark.Thread, t *table.Table, row int) (bool, error) {
	v, err := ce.evalRow(thread, t, row)
	if err != nil {
		return false, err
	}

	return bool(v.Truth()), nil
}

func toStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case float64:
		return starlark.Float(x)
	case string:
		return starlark.String(x)
	case bool:
		return starlark.Bool(x)
	case time.Time:
		return startime.Time(x)
	default:
		return starlark.String(fmt.Sprintf("%v", x))
	}
}

func fromStarlark(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.String:
		return string(x)
	case startime.Time:
		return time.Time(x)
	default:
		if f, ok := starlark.AsFloat(v); ok {
			return f
		}

		return v.String()
	}
}
