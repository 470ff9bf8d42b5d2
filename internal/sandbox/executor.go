// Package sandbox executes validated query plans against in-memory
// tables. Plans run with no access to the filesystem, network, or host
// process; expressions evaluate in an embedded Starlark interpreter
// under a step budget, and the whole run is bounded by a wall-clock
// deadline and a result-row ceiling.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/logging"
	"github.com/tabiq-dev/tabiq/internal/plan"
	"github.com/tabiq-dev/tabiq/internal/table"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultMaxSteps      = 5_000_000
	DefaultMaxResultRows = 500_000
)

// Options bound a single execution
type Options struct {
	// Timeout is the wall-clock budget for one Execute call
	Timeout time.Duration

	// MaxSteps is the cumulative Starlark step budget across all
	// expression evaluations in one run.
	MaxSteps uint64

	// MaxResultRows caps the rows any join, pivot, or unpivot may
	// produce.
	MaxResultRows int
}

// Executor runs plans. It is stateless and safe for concurrent use.
type Executor struct {
	opts Options
}

// New returns an executor, filling unset options with defaults
func New(opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}

	if opts.MaxResultRows == 0 {
		opts.MaxResultRows = DefaultMaxResultRows
	}

	return &Executor{opts: opts}
}

// Result is a successful run's outcome. A single-cell result table is
// additionally exposed as a scalar so callers can render "Result: 42"
// instead of a one-cell table.
type Result struct {
	Table    *table.Table
	Scalar   any
	IsScalar bool
	Duration time.Duration
}

// Execute parses, validates, and runs a plan against the input tables.
// The run fails structurally rather than partially: any op error, budget
// overrun, or missing result binding returns a typed error carrying the
// program text.
func (ex *Executor) Execute(ctx context.Context, programText string, inputs map[string]*table.Table) (*Result, error) {
	start := time.Now()

	prog, err := plan.Parse(programText)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecutionFault,
			"program is not an executable plan").
			WithStage(errors.StageExecution).
			WithProgram(programText)
	}

	schemas := make(map[string]table.Schema, len(inputs))
	for name, t := range inputs {
		schemas[name] = table.SchemaOf(t)
	}

	if err := plan.Validate(prog, schemas); err != nil {
		return nil, attachProgram(err, programText)
	}

	runCtx, cancel := context.WithTimeout(ctx, ex.opts.Timeout)
	defer cancel()

	thread := &starlark.Thread{Name: "sandbox"}
	thread.SetMaxExecutionSteps(ex.opts.MaxSteps)

	// The watchdog interrupts any in-flight Starlark call when the
	// deadline passes; pure Go loops notice through runCtx polling.
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-runCtx.Done():
			thread.Cancel("execution budget exhausted")
		case <-done:
		}
	}()

	e := &exec{ctx: runCtx, thread: thread, maxRows: ex.opts.MaxResultRows}

	scope := make(map[string]*table.Table, len(inputs)+len(prog))
	for name, t := range inputs {
		scope[name] = t
	}

	for i, step := range prog {
		out, err := e.runStep(step, scope)
		if err != nil {
			return nil, ex.failure(runCtx, err, programText, i)
		}

		scope[step.Bind] = out
	}

	result, ok := scope[plan.ResultBinding]
	if !ok {
		return nil, errors.New(errors.ErrTypeExecutionFault, "no result produced").
			WithStage(errors.StageExecution).
			WithProgram(programText).
			WithSuggestion(`bind the final step to "result"`)
	}

	res := &Result{Table: result, Duration: time.Since(start)}

	if result.NumRows() == 1 && result.NumCols() == 1 {
		res.Scalar = result.Cell(0, 0)
		res.IsScalar = true
	}

	logging.Debugf("plan executed: %d steps, %d result rows, %s",
		len(prog), result.NumRows(), res.Duration)

	return res, nil
}

func (e *exec) runStep(step plan.Step, scope map[string]*table.Table) (*table.Table, error) {
	var src *table.Table

	switch {
	case step.From != "":
		src = scope[step.From]
	case step.Join != nil:
		joined, err := e.runJoin(scope[step.Join.Left], scope[step.Join.Right], *step.Join)
		if err != nil {
			return nil, err
		}

		src = joined
	}

	if src == nil {
		return nil, fmt.Errorf("binding %q has no source", step.Bind)
	}

	return e.applyOps(src, step.Ops)
}

// failure maps a raw step error to the structured taxonomy. Deadline and
// step-budget overruns become timeouts; everything else is an execution
// fault. The program text is always attached.
func (ex *Executor) failure(runCtx context.Context, err error, programText string, step int) error {
	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		return errors.Newf(errors.ErrTypeExecutionTimeout,
			"execution exceeded the %s budget", ex.opts.Timeout).
			WithStage(errors.StageExecution).
			WithProgram(programText).
			WithSuggestion("narrow the query with filters or a limit")
	case strings.Contains(err.Error(), "too many steps"):
		return errors.New(errors.ErrTypeExecutionTimeout,
			"execution exceeded the expression step budget").
			WithStage(errors.StageExecution).
			WithProgram(programText).
			WithSuggestion("simplify the expressions in the query")
	case runCtx.Err() == context.Canceled:
		return errors.Wrap(err, errors.ErrTypeExecutionFault, "execution cancelled").
			WithStage(errors.StageExecution).
			WithProgram(programText)
	default:
		return errors.Wrapf(err, errors.ErrTypeExecutionFault,
			"step %d failed", step).
			WithStage(errors.StageExecution).
			WithProgram(programText)
	}
}

func attachProgram(err error, programText string) error {
	if structured, ok := errors.AsError(err); ok {
		structured.WithProgram(programText)
	}

	return err
}
