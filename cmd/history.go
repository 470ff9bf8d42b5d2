package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/format"
	"github.com/tabiq-dev/tabiq/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded query sessions",
	Long: `History lists recorded sessions, or the queries inside one session with
--session. Queries are recorded by ask, join, aggregate, and timeseries
unless --no-history is set or history is disabled in the configuration.

Examples:
  tabiq history
  tabiq history --session default
  tabiq history --clear --session default`,
	RunE: runHistory,
}

var (
	historySession string
	historyClear   bool
)

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "Show the queries recorded under one session")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete the selected session instead of showing it")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	store := openHistory()
	defer store.Close()

	if historyClear {
		if historySession == "" {
			return errors.New(errors.ErrTypeValidation, "--clear needs --session")
		}

		if err := store.Delete(ctx, historySession); err != nil {
			return err
		}

		fmt.Fprintf(w, "Deleted session %q.\n", historySession)

		return nil
	}

	if historySession != "" {
		return showSession(ctx, w, store, historySession)
	}

	return showSessions(ctx, w, store)
}

func showSessions(ctx context.Context, w io.Writer, store history.Store) error {
	infos, err := store.List(ctx)
	if err != nil {
		return err
	}

	if flagFormat == format.StyleJSON {
		return writeJSON(w, infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No recorded sessions.")
		return nil
	}

	payload := format.Payload{
		Columns: []format.ColumnDesc{
			{Name: "session", Type: "text"},
			{Name: "queries", Type: "numeric"},
			{Name: "last_used", Type: "temporal"},
		},
		Rows:      make([]map[string]any, 0, len(infos)),
		TotalRows: len(infos),
	}
	for _, info := range infos {
		payload.Rows = append(payload.Rows, map[string]any{
			"session":   info.ID,
			"queries":   info.Queries,
			"last_used": info.Last.Format(time.RFC3339),
		})
	}

	return format.Render(w, payload, flagFormat)
}

func showSession(ctx context.Context, w io.Writer, store history.Store, id string) error {
	sess, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	if flagFormat == format.StyleJSON {
		return writeJSON(w, sess)
	}

	payload := format.Payload{
		Columns: []format.ColumnDesc{
			{Name: "time", Type: "temporal"},
			{Name: "query", Type: "text"},
			{Name: "intent", Type: "categorical"},
			{Name: "ok", Type: "boolean"},
			{Name: "rows", Type: "numeric"},
		},
		Rows:      make([]map[string]any, 0, len(sess.Entries)),
		TotalRows: len(sess.Entries),
	}
	for _, e := range sess.Entries {
		payload.Rows = append(payload.Rows, map[string]any{
			"time":   e.CreatedAt.Format("2006-01-02 15:04"),
			"query":  e.Query,
			"intent": e.Intent,
			"ok":     e.Success,
			"rows":   e.Rows,
		})
	}

	return format.Render(w, payload, flagFormat)
}
