package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Output styles accepted by Render
const (
	StyleTable    = "table"
	StyleJSON     = "json"
	StyleCSV      = "csv"
	StyleMarkdown = "markdown"
)

// Render writes the payload in the requested style. The zero style and
// unknown styles render as a terminal table.
func Render(w io.Writer, p Payload, style string) error {
	switch strings.ToLower(style) {
	case StyleJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(p)
	case StyleCSV:
		writer(w, p).RenderCSV()
		return nil
	case StyleMarkdown, "md":
		writer(w, p).RenderMarkdown()
		return nil
	default:
		writer(w, p).Render()

		if p.Truncated {
			_, err := fmt.Fprintf(w, "(showing %d of %d rows)\n", len(p.Rows), p.TotalRows)
			return err
		}

		_, err := fmt.Fprintf(w, "(%d rows)\n", p.TotalRows)

		return err
	}
}

func writer(w io.Writer, p Payload) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	// Column names are user data, keep their case as-is
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(p.Columns))
	for i, col := range p.Columns {
		header[i] = col.Name
	}

	tw.AppendHeader(header)

	for _, rowMap := range p.Rows {
		row := make(table.Row, len(p.Columns))
		for i, col := range p.Columns {
			row[i] = cellText(rowMap[col.Name])
		}

		tw.AppendRow(row)
	}

	return tw
}
