package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabiq-dev/tabiq/internal/engine"
)

func TestValidateAcceptsRunnableQuery(t *testing.T) {
	isolate(t)
	path := writeData(t, "sales.csv", salesCSV)

	out, err := executeCommand(t, "validate", path,
		"Show me rows where sales is greater than 100")
	require.NoError(t, err)

	assert.Contains(t, out, "OK: resolves to a filter query")
}

func TestValidateRejectsJoinWithOneTable(t *testing.T) {
	isolate(t)
	path := writeData(t, "customers.csv", customersCSV)

	out, err := executeCommand(t, "validate", path, "Join customers and orders")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "would not run")
	assert.Contains(t, out, "table")
}

func TestValidateJSONCarriesIssues(t *testing.T) {
	isolate(t)
	path := writeData(t, "customers.csv", customersCSV)

	out, err := executeCommand(t, "validate", path,
		"Show the monthly sales trend over time", "--format", "json")

	require.Error(t, err)

	var v engine.Validation
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.False(t, v.Valid)
	require.NotEmpty(t, v.Issues)
	assert.Equal(t, "schema_mismatch", v.Issues[0].Type)
}
