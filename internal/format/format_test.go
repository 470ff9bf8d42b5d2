package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabiq-dev/tabiq/internal/lang"
	"github.com/tabiq-dev/tabiq/internal/table"
)

func resultTable(t *testing.T, rows int) *table.Table {
	t.Helper()

	regions := make([]any, rows)
	sales := make([]any, rows)

	for i := 0; i < rows; i++ {
		regions[i] = "r" + string(rune('a'+i%3))
		sales[i] = float64(i * 10)
	}

	tbl, err := table.New([]table.Column{
		{Name: "region", Type: table.TypeCategorical, Values: regions},
		{Name: "sales", Type: table.TypeNumeric, Values: sales},
	})
	require.NoError(t, err)

	return tbl
}

func TestFromTableTruncatesButReportsFullShape(t *testing.T) {
	p := FromTable(resultTable(t, 250), 100)

	assert.Len(t, p.Rows, 100)
	assert.Equal(t, 250, p.TotalRows)
	assert.True(t, p.Truncated)

	require.Len(t, p.Columns, 2)
	assert.Equal(t, ColumnDesc{Name: "region", Type: "categorical"}, p.Columns[0])
	assert.Equal(t, ColumnDesc{Name: "sales", Type: "numeric"}, p.Columns[1])

	assert.Equal(t, 0.0, p.Rows[0]["sales"])
	assert.Equal(t, 990.0, p.Rows[99]["sales"])
}

func TestFromTableSmallResultNotTruncated(t *testing.T) {
	p := FromTable(resultTable(t, 3), 100)

	assert.Len(t, p.Rows, 3)
	assert.Equal(t, 3, p.TotalRows)
	assert.False(t, p.Truncated)
}

func TestFromTableZeroLimitUsesDefault(t *testing.T) {
	p := FromTable(resultTable(t, 150), 0)

	assert.Len(t, p.Rows, DefaultRowLimit)
	assert.Equal(t, 150, p.TotalRows)
}

func TestFromScalar(t *testing.T) {
	p := FromScalar(42.0)

	require.Len(t, p.Columns, 1)
	assert.Equal(t, ColumnDesc{Name: "result", Type: "numeric"}, p.Columns[0])
	require.Len(t, p.Rows, 1)
	assert.Equal(t, 42.0, p.Rows[0]["result"])
	assert.Equal(t, 1, p.TotalRows)

	assert.Equal(t, "temporal", FromScalar(time.Now()).Columns[0].Type)
	assert.Equal(t, "boolean", FromScalar(true).Columns[0].Type)
	assert.Equal(t, "text", FromScalar("west").Columns[0].Type)
}

func TestSummaries(t *testing.T) {
	assert.Equal(t, "Found 42 rows", TabularSummary(42))
	assert.Equal(t, "Result: 600", ScalarSummary(600.0))
	assert.Equal(t, "Result: west", ScalarSummary("west"))
}

func TestExplainPerIntent(t *testing.T) {
	cases := []struct {
		intent lang.Intent
		want   string
	}{
		{lang.IntentFilter, "I filtered the data based on your criteria: 'q'. Found 2 rows"},
		{lang.IntentAggregate, "I performed aggregation on the data: 'q'. Found 2 rows"},
		{lang.IntentSort, "I sorted the data as requested: 'q'. Found 2 rows"},
		{lang.IntentSummarize, "Here's a summary of your data: Found 2 rows"},
		{lang.IntentVisualize, "I prepared the data for visualization: 'q'. Found 2 rows"},
		{lang.IntentStatistics, "I calculated the requested statistics: 'q'. Found 2 rows"},
		{lang.IntentJoin, "I processed your query: 'q'. Found 2 rows"},
		{lang.IntentUnknown, "I processed your query: 'q'. Found 2 rows"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Explain(tc.intent, "q", "Found 2 rows"), "intent %s", tc.intent)
	}
}

func TestRoundTripThroughPayload(t *testing.T) {
	src := resultTable(t, 5)
	p := FromTable(src, 100)

	// Column names, types, and the true row count survive the payload.
	names := make([]string, 0, len(p.Columns))
	for _, c := range p.Columns {
		names = append(names, c.Name)
	}

	assert.Equal(t, src.ColumnNames(), names)
	assert.Equal(t, src.NumRows(), p.TotalRows)

	for i, c := range p.Columns {
		assert.Equal(t, string(src.ColumnType(c.Name)), p.Columns[i].Type)
	}
}

func TestRenderTableStyle(t *testing.T) {
	var buf bytes.Buffer

	p := FromTable(resultTable(t, 3), 100)
	require.NoError(t, Render(&buf, p, StyleTable))

	out := buf.String()
	assert.Contains(t, out, "region")
	assert.Contains(t, out, "sales")
	assert.Contains(t, out, "(3 rows)")
}

func TestRenderTableShowsTruncation(t *testing.T) {
	var buf bytes.Buffer

	p := FromTable(resultTable(t, 250), 100)
	require.NoError(t, Render(&buf, p, ""))

	assert.Contains(t, buf.String(), "(showing 100 of 250 rows)")
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer

	p := FromTable(resultTable(t, 2), 100)
	require.NoError(t, Render(&buf, p, StyleJSON))

	var decoded Payload
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.TotalRows)
	assert.Len(t, decoded.Rows, 2)
	assert.Equal(t, "region", decoded.Columns[0].Name)
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer

	p := FromTable(resultTable(t, 2), 100)
	require.NoError(t, Render(&buf, p, StyleCSV))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "region,sales", lines[0])
	assert.Contains(t, lines[1], "ra")
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer

	p := FromTable(resultTable(t, 1), 100)
	require.NoError(t, Render(&buf, p, StyleMarkdown))

	out := buf.String()
	assert.Contains(t, out, "| region | sales |")
	assert.Contains(t, out, "| --- |")
}

func TestRenderNullCellsAsEmpty(t *testing.T) {
	tbl, err := table.New([]table.Column{
		{Name: "v", Type: table.TypeNumeric, Values: []any{nil, 1.0}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer

	require.NoError(t, Render(&buf, FromTable(tbl, 10), StyleCSV))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "1", lines[2])
}
