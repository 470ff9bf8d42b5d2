// Package engine drives the query pipeline. Entity extraction and
// intent classification come from lang, plans from synth, execution
// from sandbox, and payloads from format; the engine routes each query
// to its class and folds every failure into the response instead of
// returning bare errors.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tabiq-dev/tabiq/internal/config"
	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/format"
	"github.com/tabiq-dev/tabiq/internal/lang"
	"github.com/tabiq-dev/tabiq/internal/llm"
	"github.com/tabiq-dev/tabiq/internal/logging"
	"github.com/tabiq-dev/tabiq/internal/sandbox"
	"github.com/tabiq-dev/tabiq/internal/synth"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// Options configure an engine
type Options struct {
	// Completion drafts plans when set. Nil runs template-only
	// synthesis.
	Completion llm.CompletionService

	// Exec bounds sandboxed execution
	Exec sandbox.Options

	// RowLimit caps interactive result payloads, JobRowLimit the
	// larger payloads background jobs may return.
	RowLimit    int
	JobRowLimit int
}

// Engine runs queries. It is stateless across queries and safe for
// concurrent use.
type Engine struct {
	synth       *synth.Synthesizer
	exec        *sandbox.Executor
	rowLimit    int
	jobRowLimit int
}

// New builds an engine, filling unset limits with the format defaults
func New(opts Options) *Engine {
	if opts.RowLimit <= 0 {
		opts.RowLimit = format.DefaultRowLimit
	}

	if opts.JobRowLimit <= 0 {
		opts.JobRowLimit = format.DefaultJobRowLimit
	}

	return &Engine{
		synth:       synth.New(opts.Completion),
		exec:        sandbox.New(opts.Exec),
		rowLimit:    opts.RowLimit,
		jobRowLimit: opts.JobRowLimit,
	}
}

// FromConfig wires an engine from application configuration, building
// the completion client when a provider is configured.
func FromConfig(cfg *config.Config) (*Engine, error) {
	var svc llm.CompletionService

	if cfg.LLM.Provider != "" && cfg.LLM.Provider != llm.ProviderNone {
		client, err := llm.New(llm.OptionsFromConfig(cfg))
		if err != nil {
			return nil, err
		}

		svc = client
	}

	return New(Options{
		Completion: svc,
		Exec: sandbox.Options{
			Timeout:       cfg.ExecTimeout(),
			MaxSteps:      uint64(cfg.Exec.MaxSteps),
			MaxResultRows: cfg.Exec.MaxResultRows,
		},
		RowLimit:    cfg.Exec.RowLimit,
		JobRowLimit: cfg.Exec.JobRowLimit,
	}), nil
}

// Progress receives coarse milestones while a query runs
type Progress func(percent int, status string)

func (p Progress) send(percent int, status string) {
	if p != nil {
		p(percent, status)
	}
}

// Failure describes why a query did not produce a result
type Failure struct {
	Type        string   `json:"type"`
	Stage       string   `json:"stage,omitempty"`
	Message     string   `json:"message"`
	Program     string   `json:"program,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Response is the externally visible outcome of one query. Immutable
// once returned.
type Response struct {
	ID          string              `json:"id"`
	Query       string              `json:"query"`
	Success     bool                `json:"success"`
	Intent      lang.Intent         `json:"intent"`
	Advanced    lang.AdvancedIntent `json:"advanced_intent,omitempty"`
	Entities    lang.EntitySet      `json:"entities"`
	Program     string              `json:"program,omitempty"`
	Provenance  string              `json:"provenance,omitempty"`
	Model       string              `json:"model,omitempty"`
	Result      *format.Payload     `json:"result,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Explanation string              `json:"explanation,omitempty"`
	Error       *Failure            `json:"error,omitempty"`
	ElapsedMS   int64               `json:"elapsed_ms"`
}

// Ask answers a query, routing it to the advanced class its text
// implies. Time-series routing additionally needs a detectable time
// column, and join routing a second table, so near-miss queries still
// get a basic answer instead of a precondition failure.
func (e *Engine) Ask(ctx context.Context, query string, inputs []table.Named, report Progress) *Response {
	if adv, ok := lang.ClassifyAdvancedIntent(query); ok {
		switch adv {
		case lang.AdvancedMultiTableJoin:
			if len(inputs) >= 2 {
				return e.Join(ctx, query, inputs, report)
			}
		case lang.AdvancedComplexAggregation:
			return e.Aggregate(ctx, query, inputs, report)
		case lang.AdvancedTimeSeries:
			if len(inputs) > 0 {
				if _, ok := lang.DetectDateColumn(inputs[0].Table, query); ok {
					return e.TimeSeries(ctx, query, inputs, report)
				}
			}
		}
	}

	task := e.analyze(query, inputs)
	task.Class = synth.ClassBasic

	return e.run(ctx, task, "", e.rowLimit, report)
}

// Join answers a multi-table query, auto-detecting the join key
func (e *Engine) Join(ctx context.Context, query string, inputs []table.Named, report Progress) *Response {
	task := e.analyze(query, inputs)
	task.Class = synth.ClassJoin

	if det := table.DetectJoinKeys(inputs); det.Key != "" {
		task.JoinOn = []string{det.Key}
		logging.Debugf("join key detected: %s", det.Key)
	}

	return e.run(ctx, task, lang.AdvancedMultiTableJoin, e.jobRowLimit, report)
}

// Aggregate answers a multi-level aggregation query
func (e *Engine) Aggregate(ctx context.Context, query string, inputs []table.Named, report Progress) *Response {
	task := e.analyze(query, inputs)
	task.Class = synth.ClassAggregation

	if len(inputs) > 0 {
		task.GroupBy, task.Aggs = lang.AggregationParams(query, inputs[0].Table)
	}

	return e.run(ctx, task, lang.AdvancedComplexAggregation, e.jobRowLimit, report)
}

// TimeSeries answers a time-series query over the detected time column
func (e *Engine) TimeSeries(ctx context.Context, query string, inputs []table.Named, report Progress) *Response {
	task := e.analyze(query, inputs)
	task.Class = synth.ClassTimeSeries

	if len(inputs) > 0 {
		if col, ok := lang.DetectDateColumn(inputs[0].Table, query); ok {
			task.DateColumn = col
		}

		task.TSOp = lang.DetectTSOperation(query)
	}

	return e.run(ctx, task, lang.AdvancedTimeSeries, e.jobRowLimit, report)
}

// analyze runs the stages every class shares. Both are total: empty
// entities and an unknown intent flow through to template synthesis.
func (e *Engine) analyze(query string, inputs []table.Named) synth.Task {
	entities := lang.Extract(query, allColumns(inputs))
	intent := lang.ClassifyIntent(query)

	if entities.Empty() {
		logging.Debugf("no entities recognized in %q", query)
	}

	return synth.Task{
		Query:    query,
		Intent:   intent,
		Entities: entities,
		Inputs:   inputs,
	}
}

func (e *Engine) run(
	ctx context.Context,
	task synth.Task,
	advanced lang.AdvancedIntent,
	limit int,
	report Progress,
) *Response {
	start := time.Now()

	resp := &Response{
		ID:       uuid.New().String(),
		Query:    task.Query,
		Intent:   task.Intent,
		Advanced: advanced,
		Entities: task.Entities,
	}

	report.send(30, "synthesizing")

	syn, err := e.synth.Synthesize(ctx, task)
	if err != nil {
		return fail(resp, err, start)
	}

	resp.Program = syn.PlanText
	resp.Provenance = syn.Provenance
	resp.Model = syn.Model

	report.send(60, "executing")

	res, err := e.exec.Execute(ctx, syn.PlanText, bindings(task.Inputs))
	if err != nil {
		return fail(resp, err, start)
	}

	report.send(90, "formatting")

	payload := format.FromTable(res.Table, limit)
	resp.Result = &payload

	if res.IsScalar {
		resp.Summary = format.ScalarSummary(res.Scalar)
	} else {
		resp.Summary = format.TabularSummary(payload.TotalRows)
	}

	resp.Explanation = format.Explain(task.Intent, task.Query, resp.Summary)
	resp.Success = true
	resp.ElapsedMS = time.Since(start).Milliseconds()

	report.send(100, "done")

	return resp
}

func fail(resp *Response, err error, start time.Time) *Response {
	logging.Warnf("query %s failed: %v", resp.ID, err)

	resp.Success = false
	resp.ElapsedMS = time.Since(start).Milliseconds()
	resp.Error = &Failure{
		Type:        string(errors.GetType(err)),
		Stage:       string(errors.GetStage(err)),
		Message:     err.Error(),
		Program:     errors.GetProgram(err),
		Suggestions: errors.GetSuggestions(err),
	}

	return resp
}

func allColumns(inputs []table.Named) []string {
	var cols []string

	seen := make(map[string]bool)

	for _, in := range inputs {
		for _, name := range in.Table.ColumnNames() {
			if !seen[name] {
				seen[name] = true

				cols = append(cols, name)
			}
		}
	}

	return cols
}

func bindings(inputs []table.Named) map[string]*table.Table {
	m := make(map[string]*table.Table, len(inputs))
	for _, in := range inputs {
		m[in.Name] = in.Table
	}

	return m
}
