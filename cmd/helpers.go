package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/dataset"
	"github.com/tabiq-dev/tabiq/internal/engine"
	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/format"
	"github.com/tabiq-dev/tabiq/internal/history"
	"github.com/tabiq-dev/tabiq/internal/jobs"
	"github.com/tabiq-dev/tabiq/internal/llm"
	"github.com/tabiq-dev/tabiq/internal/logging"
	"github.com/tabiq-dev/tabiq/internal/sandbox"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// buildEngine assembles the query engine plus the completion gate the
// job runner consults. One client serves both so the gate probes the
// same rate budget the engine spends; the gate is nil when no provider
// is configured.
func buildEngine() (*engine.Engine, jobs.Gate, error) {
	var (
		svc  llm.CompletionService
		gate jobs.Gate
	)

	if appCfg.LLM.Provider != "" && appCfg.LLM.Provider != llm.ProviderNone {
		client, err := llm.New(llm.OptionsFromConfig(appCfg))
		if err != nil {
			return nil, nil, err
		}

		svc = client
		gate = client
	}

	eng := engine.New(engine.Options{
		Completion: svc,
		Exec: sandbox.Options{
			Timeout:       appCfg.ExecTimeout(),
			MaxSteps:      uint64(appCfg.Exec.MaxSteps),
			MaxResultRows: appCfg.Exec.MaxResultRows,
		},
		RowLimit:    appCfg.Exec.RowLimit,
		JobRowLimit: appCfg.Exec.JobRowLimit,
	})

	return eng, gate, nil
}

// openHistory returns the configured history store. A disabled or
// unopenable on-disk store downgrades to an in-memory one, so history
// problems never block a query.
func openHistory() history.Store {
	if !appCfg.History.Enabled {
		return history.NewMemoryStore()
	}

	store, err := history.NewSQLiteStore(appCfg.History.Path)
	if err != nil {
		logging.Warnf("history not recorded: %v", err)
		return history.NewMemoryStore()
	}

	return store
}

// record appends the query outcome to session history. Write failures
// are logged, not surfaced: the result already happened.
func record(ctx context.Context, store history.Store, session string, resp *engine.Response) {
	if err := store.Put(ctx, history.FromResponse(session, resp)); err != nil {
		logging.Warnf("history write failed: %v", err)
	}
}

// loadNamed loads a single file through the store, naming the table
// after the file stem.
func loadNamed(ctx context.Context, store *dataset.Store, path string) (table.Named, error) {
	t, err := store.Load(ctx, path)
	if err != nil {
		return table.Named{}, err
	}

	return table.Named{Name: dataset.TableName(path), Table: t}, nil
}

// advancedQuery describes one query that runs through the job runner
type advancedQuery struct {
	kind    string
	session string
	paths   []string
	run     func(ctx context.Context, inputs []table.Named, report engine.Progress) *engine.Response
}

// runAdvanced drives a query through the job runner: load the sources,
// run the engine method under the job's context, record history, and
// render the response.
func runAdvanced(cmd *cobra.Command, gate jobs.Gate, q advancedQuery) error {
	ctx := cmd.Context()

	store := dataset.NewStore(appCfg.Cache)
	defer store.Close()

	resp, err := runJob(ctx, gate, q.kind, func(jctx context.Context, report engine.Progress) (*engine.Response, error) {
		report(15, "loading")

		inputs, err := store.LoadAll(jctx, q.paths)
		if err != nil {
			return nil, err
		}

		return q.run(jctx, inputs, report), nil
	})
	if err != nil {
		return err
	}

	hist := openHistory()
	defer hist.Close()
	record(ctx, hist, q.session, resp)

	return emitResponse(cmd.OutOrStdout(), resp)
}

// runJob submits fn to a runner sized from the configuration and waits
// for it to finish.
func runJob(ctx context.Context, gate jobs.Gate, kind string, fn jobs.Fn) (*engine.Response, error) {
	runner := jobs.NewRunner(jobs.Options{
		Workers:   appCfg.Jobs.Workers,
		QueueSize: appCfg.Jobs.QueueSize,
		Gate:      gate,
	})
	defer runner.Close()

	id, err := runner.Submit(kind, fn)
	if err != nil {
		return nil, err
	}

	snap, err := waitForJob(ctx, runner, id)
	if err != nil {
		return nil, err
	}

	switch snap.State {
	case jobs.StateCompleted:
		return snap.Response, nil
	case jobs.StateCancelled:
		return nil, errors.Newf(errors.ErrTypeInternal, "%s job was cancelled", kind)
	default:
		return nil, errors.Newf(errors.ErrTypeInternal, "%s job failed: %s", kind, snap.Error)
	}
}

// waitForJob blocks until the job finishes. Human output gets a
// spinner on stderr that follows the job's progress reports; machine
// formats wait quietly.
func waitForJob(ctx context.Context, runner *jobs.Runner, id string) (*jobs.Snapshot, error) {
	if flagFormat != format.StyleTable {
		return runner.Wait(ctx, id)
	}

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	spin.Start()
	defer spin.Stop()

	for {
		snap, err := runner.Status(id)
		if err != nil {
			return nil, err
		}

		if snap.Done() {
			return snap, nil
		}

		spin.Suffix = fmt.Sprintf(" %s %d%%", snap.Status, snap.Percent)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// emitResponse renders a query response to w. A failed query renders
// its suggestions and comes back as an error so the process exits
// non-zero.
func emitResponse(w io.Writer, resp *engine.Response) error {
	if flagFormat == format.StyleJSON {
		if err := writeJSON(w, resp); err != nil {
			return err
		}

		if !resp.Success {
			return failureError(resp.Error)
		}

		return nil
	}

	if !resp.Success {
		if resp.Error != nil {
			for _, s := range resp.Error.Suggestions {
				fmt.Fprintf(w, "try: %s\n", s)
			}
		}

		return failureError(resp.Error)
	}

	if resp.Result != nil {
		if err := format.Render(w, *resp.Result, flagFormat); err != nil {
			return err
		}
	}

	if flagFormat == format.StyleTable && resp.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", resp.Explanation)
	}

	return nil
}

func failureError(f *engine.Failure) error {
	if f == nil {
		return errors.New(errors.ErrTypeInternal, "query failed without detail")
	}

	return errors.New(errors.ErrorType(f.Type), f.Message)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
