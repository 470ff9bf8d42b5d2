package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabiq-dev/tabiq/internal/lang"
)

func TestJoinMergesOnSharedKey(t *testing.T) {
	isolate(t)
	customers := writeData(t, "customers.csv", customersCSV)
	orders := writeData(t, "orders.csv", ordersCSV)

	out, err := executeCommand(t, "join", customers, orders,
		"Join customers and orders", "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	require.True(t, resp.Success, "unexpected failure: %+v", resp.Error)
	assert.Equal(t, lang.AdvancedMultiTableJoin, resp.Advanced)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 3, resp.Result.TotalRows)

	names := make([]string, 0, len(resp.Result.Columns))
	for _, c := range resp.Result.Columns {
		names = append(names, c.Name)
	}

	assert.Contains(t, names, "customer_id")
	assert.Contains(t, names, "name")
	assert.Contains(t, names, "amount")
}

func TestJoinNeedsTwoFilesAndQuery(t *testing.T) {
	isolate(t)

	_, err := executeCommand(t, "join", "one.csv", "missing a query")

	require.Error(t, err)
}

func TestJoinMissingFileFailsTheJob(t *testing.T) {
	isolate(t)
	customers := writeData(t, "customers.csv", customersCSV)
	missing := filepath.Join(t.TempDir(), "orders.csv")

	_, err := executeCommand(t, "join", customers, missing,
		"Join customers and orders", "--format", "json")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "join job failed")
	assert.Contains(t, err.Error(), "orders.csv")
}
