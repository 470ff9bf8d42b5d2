package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearWholeCache(t *testing.T) {
	isolate(t)

	out, err := executeCommand(t, "clear")
	require.NoError(t, err)

	assert.Contains(t, out, "Cache cleared.")
}

func TestClearSingleSource(t *testing.T) {
	isolate(t)

	out, err := executeCommand(t, "clear", "--source", "sales.csv")
	require.NoError(t, err)

	assert.Contains(t, out, "Dropped cache entry for sales.csv.")
}
