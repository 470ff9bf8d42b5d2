package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/format"
)

const salesCSV = "region,sales,when,note\n" +
	"west,100,2024-01-05,ok\n" +
	"east,200,2024-02-10,fine\n" +
	"west,,2024-03-15,meh\n" +
	"south,400,,good\n" +
	"east,250,2024-05-20,bad\n" +
	"west,175,2024-06-25,dull\n"

const customersCSV = "customer_id,name\n" +
	"1,ada\n" +
	"2,bo\n" +
	"3,cy\n"

const ordersCSV = "customer_id,amount\n" +
	"1,10\n" +
	"1,20\n" +
	"2,30\n"

// isolate points configuration at an empty temp location so tests never
// touch the real config file or history database.
func isolate(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("TABIQ_CONFIG", filepath.Join(dir, "config.json"))
	t.Setenv("TABIQ_HISTORY_ENABLED", "false")
	t.Setenv("TABIQ_LOG_LEVEL", "error")
}

func writeData(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// resetFlags restores every flag variable to its default. Flag values
// parsed by one Execute call would otherwise leak into the next.
func resetFlags() {
	flagFormat = format.StyleTable
	flagLogLevel = ""
	flagVerbose = false
	flagDebug = false
	flagProvider = ""
	flagModel = ""
	flagHistoryPath = ""
	flagNoHistory = false

	askLimit = 0
	askSession = "default"
	joinSession = "default"
	aggregateSession = "default"
	timeseriesSession = "default"
	historySession = ""
	historyClear = false
	clearSource = ""

	for _, name := range []string{"log-level", "provider", "model", "history-path"} {
		if f := rootCmd.PersistentFlags().Lookup(name); f != nil {
			f.Changed = false
		}
	}
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()

	return buf.String(), err
}

func decodeResponse(t *testing.T, out string) *engine.Response {
	t.Helper()

	var resp engine.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "not a response: %s", out)

	return &resp
}
