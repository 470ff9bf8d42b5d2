// Package synth turns an analyzed query into an executable plan. A
// configured completion service drafts the plan and anything unusable
// (transport failure, non-plan text, schema violations) degrades to
// deterministic templates, so a plan comes back for every query class
// even with no model at all.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/lang"
	"github.com/tabiq-dev/tabiq/internal/llm"
	"github.com/tabiq-dev/tabiq/internal/logging"
	"github.com/tabiq-dev/tabiq/internal/plan"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// Query classes, each with its own prompt and fallback template
type Class string

const (
	ClassBasic        Class = "basic"
	ClassJoin         Class = "join"
	ClassAggregation  Class = "complex_aggregation"
	ClassTimeSeries   Class = "time_series"
	ClassOptimization Class = "optimization"
)

// Plan provenance
const (
	ProvenanceLLM      = "llm"
	ProvenanceFallback = "fallback"
)

// Task carries everything known about a query when synthesis starts.
// The advanced fields are filled by the caller for the class they serve
// and ignored otherwise.
type Task struct {
	Query    string
	Class    Class
	Intent   lang.Intent
	Entities lang.EntitySet
	Inputs   []table.Named

	// join
	JoinOn   []string
	JoinKind string

	// complex aggregation
	GroupBy []string
	Aggs    []lang.AggSpec

	// time series
	DateColumn string
	TSOp       lang.TSOperation
}

// Result is a validated, executable plan plus where it came from
type Result struct {
	PlanText   string
	Program    plan.Program
	Provenance string
	Model      string
}

// Synthesizer drafts plans with an optional completion service
type Synthesizer struct {
	svc llm.CompletionService
}

// New builds a synthesizer. A nil service means fallback-only.
func New(svc llm.CompletionService) *Synthesizer {
	return &Synthesizer{svc: svc}
}

// Synthesize produces a validated plan for the task. The model draft is
// tried first when a service is configured; every degradation path ends
// in the class's deterministic template.
func (s *Synthesizer) Synthesize(ctx context.Context, task Task) (*Result, error) {
	if len(task.Inputs) == 0 {
		return nil, errors.NewInsufficientInputs("no input tables bound")
	}

	if task.Class == "" {
		task.Class = ClassBasic
	}

	schemas := schemasOf(task.Inputs)

	if s.svc != nil {
		res, err := s.fromModel(ctx, task, schemas)
		if err == nil {
			return res, nil
		}

		if ctx.Err() != nil {
			return nil, err
		}

		logging.Warnf("model synthesis failed, using the %s template: %v", task.Class, err)
	}

	prog, err := s.fallbackProgram(task)
	if err != nil {
		return nil, err
	}

	if err := plan.Validate(prog, schemas); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeSynthesisUnavailable,
			"no executable program for this query").
			WithStage(errors.StageSynthesis)
	}

	return &Result{
		PlanText:   plan.Encode(prog),
		Program:    prog,
		Provenance: ProvenanceFallback,
	}, nil
}

func (s *Synthesizer) fromModel(ctx context.Context, task Task, schemas map[string]table.Schema) (*Result, error) {
	resp, err := s.svc.Complete(ctx, llm.Request{
		System:    systemPrompt(task.Class),
		Prompt:    userPrompt(task),
		MaxTokens: maxTokensFor(task.Class),
	})
	if err != nil {
		return nil, err
	}

	text := ExtractPlanText(resp.Text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("completion carried no plan text")
	}

	prog, err := plan.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("completion is not a plan: %w", err)
	}

	if err := plan.Validate(prog, schemas); err != nil {
		return nil, fmt.Errorf("drafted plan failed validation: %w", err)
	}

	logging.Debugf("model drafted a %d-step plan for class %s", len(prog), task.Class)

	return &Result{
		PlanText:   plan.Encode(prog),
		Program:    prog,
		Provenance: ProvenanceLLM,
		Model:      resp.Model,
	}, nil
}

func schemasOf(inputs []table.Named) map[string]table.Schema {
	schemas := make(map[string]table.Schema, len(inputs))
	for _, in := range inputs {
		schemas[in.Name] = table.SchemaOf(in.Table)
	}

	return schemas
}
