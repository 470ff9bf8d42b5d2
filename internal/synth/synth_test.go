package synth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/lang"
	"github.com/tabiq-dev/tabiq/internal/llm"
	"github.com/tabiq-dev/tabiq/internal/plan"
	"github.com/tabiq-dev/tabiq/internal/table"
)

type mockService struct {
	resp    string
	err     error
	lastReq llm.Request
	calls   int
}

func (m *mockService) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.calls++
	m.lastReq = req

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}

	return &llm.Response{Text: m.resp, Provider: "mock", Model: "mock-model"}, nil
}

func salesInputs(t *testing.T) []table.Named {
	t.Helper()

	day := func(d int) time.Time {
		return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
	}

	tbl, err := table.New([]table.Column{
		{Name: "region", Type: table.TypeCategorical, Values: []any{"west", "east", "west", "south"}},
		{Name: "sales", Type: table.TypeNumeric, Values: []any{100.0, 200.0, nil, 400.0}},
		{Name: "when", Type: table.TypeTemporal, Values: []any{day(1), day(2), day(3), day(4)}},
	})
	require.NoError(t, err)

	return []table.Named{{Name: "sales_data", Table: tbl}}
}

func joinInputs(t *testing.T) []table.Named {
	t.Helper()

	customers, err := table.New([]table.Column{
		{Name: "customer_id", Type: table.TypeNumeric, Values: []any{1.0, 2.0}},
		{Name: "name", Type: table.TypeText, Values: []any{"alice", "bob"}},
	})
	require.NoError(t, err)

	orders, err := table.New([]table.Column{
		{Name: "customer_id", Type: table.TypeNumeric, Values: []any{1.0, 1.0, 2.0}},
		{Name: "amount", Type: table.TypeNumeric, Values: []any{10.0, 20.0, 30.0}},
	})
	require.NoError(t, err)

	return []table.Named{
		{Name: "customers", Table: customers},
		{Name: "orders", Table: orders},
	}
}

func synthesize(t *testing.T, s *Synthesizer, task Task) *Result {
	t.Helper()

	res, err := s.Synthesize(context.Background(), task)
	require.NoError(t, err)
	require.NotNil(t, res)

	return res
}

func TestFallbackFilterGreaterThan(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:  "show sales greater than 100",
		Class:  ClassBasic,
		Intent: lang.IntentFilter,
		Entities: lang.EntitySet{
			Columns:    []string{"sales"},
			Operations: []string{"filter", "greater_than"},
			Values:     []string{"100"},
		},
		Inputs: salesInputs(t),
	})

	assert.Equal(t, ProvenanceFallback, res.Provenance)
	require.Len(t, res.Program, 1)
	require.Len(t, res.Program[0].Ops, 1)

	op := res.Program[0].Ops[0]
	assert.Equal(t, plan.OpFilter, op.Kind)
	assert.Equal(t, "sales", op.Column)
	assert.Equal(t, plan.CmpGreaterThan, op.Cmp)
	assert.Equal(t, "100", string(op.Value))
}

func TestFallbackFilterEqualsOnValuePair(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:  "find rows where region is 'west'",
		Class:  ClassBasic,
		Intent: lang.IntentFilter,
		Entities: lang.EntitySet{
			Columns:    []string{"region"},
			Operations: []string{"equals"},
			Values:     []string{"west"},
		},
		Inputs: salesInputs(t),
	})

	op := res.Program[0].Ops[0]
	assert.Equal(t, plan.CmpEquals, op.Cmp)
	assert.Equal(t, `"west"`, string(op.Value))
}

func TestFallbackEmptyEntitiesPreviews(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:  "do something",
		Class:  ClassBasic,
		Intent: lang.IntentUnknown,
		Inputs: salesInputs(t),
	})

	op := res.Program[0].Ops[0]
	assert.Equal(t, plan.OpLimit, op.Kind)
	assert.Equal(t, defaultPreviewRows, op.N)
}

func TestFallbackBasicAggregateCounts(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:    "count by region",
		Class:    ClassBasic,
		Intent:   lang.IntentAggregate,
		Entities: lang.EntitySet{Columns: []string{"region"}},
		Inputs:   salesInputs(t),
	})

	op := res.Program[0].Ops[0]
	assert.Equal(t, plan.OpAggregate, op.Kind)
	assert.Equal(t, plan.StringList{"region"}, op.GroupBy)
	require.Len(t, op.Aggs, 1)
	assert.Equal(t, "count", op.Aggs[0].Fn)
}

func TestFallbackBasicAggregateSumsNamedColumn(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:    "Group sales by region and show sum",
		Class:    ClassBasic,
		Intent:   lang.IntentAggregate,
		Entities: lang.EntitySet{Columns: []string{"region", "sales"}},
		Inputs:   salesInputs(t),
	})

	op := res.Program[0].Ops[0]
	assert.Equal(t, plan.StringList{"region"}, op.GroupBy)
	require.Len(t, op.Aggs, 1)
	assert.Equal(t, "sales", op.Aggs[0].Column)
	assert.Equal(t, "sum", op.Aggs[0].Fn)
}

func TestFallbackBasicAggregateGroupsByNonNumeric(t *testing.T) {
	s := New(nil)

	// The numeric column comes first in entity order; grouping still
	// lands on the non-numeric one.
	res := synthesize(t, s, Task{
		Query:    "average sales per region",
		Class:    ClassBasic,
		Intent:   lang.IntentAggregate,
		Entities: lang.EntitySet{Columns: []string{"sales", "region"}},
		Inputs:   salesInputs(t),
	})

	op := res.Program[0].Ops[0]
	assert.Equal(t, plan.StringList{"region"}, op.GroupBy)
	require.Len(t, op.Aggs, 1)
	assert.Equal(t, "sales", op.Aggs[0].Column)
	assert.Equal(t, "mean", op.Aggs[0].Fn)
}

func TestFallbackSortAscending(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:    "sort by sales",
		Class:    ClassBasic,
		Intent:   lang.IntentSort,
		Entities: lang.EntitySet{Columns: []string{"sales"}},
		Inputs:   salesInputs(t),
	})

	op := res.Program[0].Ops[0]
	assert.Equal(t, plan.OpSort, op.Kind)
	require.Len(t, op.By, 1)
	assert.Equal(t, "sales", op.By[0].Column)
	assert.False(t, op.By[0].Desc)
}

func TestFallbackSummarize(t *testing.T) {
	s := New(nil)

	for _, intent := range []lang.Intent{lang.IntentSummarize, lang.IntentStatistics} {
		res := synthesize(t, s, Task{
			Query:  "describe the data",
			Class:  ClassBasic,
			Intent: intent,
			Inputs: salesInputs(t),
		})

		assert.Equal(t, plan.OpSummarize, res.Program[0].Ops[0].Kind, "intent %s", intent)
	}
}

func TestFallbackComplexAggregation(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:   "total and average sales by region",
		Class:   ClassAggregation,
		GroupBy: []string{"region"},
		Aggs:    []lang.AggSpec{{Column: "sales", Fns: []string{"sum", "mean", "count"}}},
		Inputs:  salesInputs(t),
	})

	op := res.Program[0].Ops[0]
	assert.Equal(t, plan.OpAggregate, op.Kind)
	assert.Equal(t, plan.StringList{"region"}, op.GroupBy)
	require.Len(t, op.Aggs, 3)
	assert.Equal(t, "sum", op.Aggs[0].Fn)
	assert.Equal(t, "mean", op.Aggs[1].Fn)
	assert.Equal(t, "count", op.Aggs[2].Fn)
}

func TestFallbackJoinInner(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:  "join customers with orders",
		Class:  ClassJoin,
		JoinOn: []string{"customer_id"},
		Inputs: joinInputs(t),
	})

	require.Len(t, res.Program, 1)

	step := res.Program[0]
	require.NotNil(t, step.Join)
	assert.Equal(t, "customers", step.Join.Left)
	assert.Equal(t, "orders", step.Join.Right)
	assert.Equal(t, plan.StringList{"customer_id"}, step.Join.On)
	assert.Equal(t, plan.JoinInner, step.Join.Kind)
}

func TestFallbackJoinWithoutKey(t *testing.T) {
	s := New(nil)

	_, err := s.Synthesize(context.Background(), Task{
		Query:  "combine the files",
		Class:  ClassJoin,
		Inputs: joinInputs(t),
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeInsufficientInputs))
}

func TestFallbackJoinNeedsTwoTables(t *testing.T) {
	s := New(nil)

	_, err := s.Synthesize(context.Background(), Task{
		Query:  "join with what",
		Class:  ClassJoin,
		Inputs: salesInputs(t),
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeInsufficientInputs))
}

func TestFallbackMovingAverage(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:      "7 day moving average of sales",
		Class:      ClassTimeSeries,
		DateColumn: "when",
		TSOp:       lang.TSMovingAverage,
		Entities:   lang.EntitySet{Columns: []string{"sales"}},
		Inputs:     salesInputs(t),
	})

	ops := res.Program[0].Ops
	require.Len(t, ops, 2)

	assert.Equal(t, plan.OpRolling, ops[0].Kind)
	assert.Equal(t, 7, ops[0].Window)
	assert.Equal(t, "sales_ma_7", ops[0].As)
	require.Len(t, ops[0].OrderBy, 1)
	assert.Equal(t, "when", ops[0].OrderBy[0].Column)

	assert.Equal(t, 30, ops[1].Window)
	assert.Equal(t, "sales_ma_30", ops[1].As)
}

func TestFallbackGrowthRate(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:      "growth rate of sales over time",
		Class:      ClassTimeSeries,
		DateColumn: "when",
		TSOp:       lang.TSGrowthRate,
		Inputs:     salesInputs(t),
	})

	ops := res.Program[0].Ops
	require.Len(t, ops, 2)

	assert.Equal(t, plan.OpPctChange, ops[0].Kind)
	assert.Equal(t, 1, ops[0].Periods)
	assert.Equal(t, plan.OpPctChange, ops[1].Kind)
	assert.Equal(t, 7, ops[1].Periods)
}

func TestFallbackTrendIsTheTimeSeriesDefault(t *testing.T) {
	s := New(nil)

	for _, op := range []lang.TSOperation{lang.TSTrend, lang.TSAnomaly, lang.TSForecast, lang.TSSeasonality} {
		res := synthesize(t, s, Task{
			Query:      "how does sales develop",
			Class:      ClassTimeSeries,
			DateColumn: "when",
			TSOp:       op,
			Inputs:     salesInputs(t),
		})

		ops := res.Program[0].Ops
		require.Len(t, ops, 2, "ts op %s", op)
		assert.Equal(t, plan.OpSort, ops[0].Kind)
		assert.Equal(t, plan.OpRolling, ops[1].Kind)
		assert.Equal(t, 10, ops[1].Window)
	}
}

func TestFallbackTimeSeriesNeedsDateColumn(t *testing.T) {
	s := New(nil)

	_, err := s.Synthesize(context.Background(), Task{
		Query:  "trend of sales",
		Class:  ClassTimeSeries,
		Inputs: salesInputs(t),
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeInsufficientInputs))
}

func TestFallbackOptimizationIdentity(t *testing.T) {
	s := New(nil)

	res := synthesize(t, s, Task{
		Query:  "make this fast",
		Class:  ClassOptimization,
		Inputs: salesInputs(t),
	})

	require.Len(t, res.Program, 1)
	assert.Equal(t, "sales_data", res.Program[0].From)
	assert.Empty(t, res.Program[0].Ops)
}

func TestSynthesizeNeedsInputs(t *testing.T) {
	s := New(nil)

	_, err := s.Synthesize(context.Background(), Task{Query: "anything"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeInsufficientInputs))
}

func TestModelDraftWins(t *testing.T) {
	svc := &mockService{resp: "Sure:\n```json\n" +
		`[{"bind": "result", "from": "sales_data", "ops": [{"op": "limit", "n": 3}]}]` +
		"\n```"}

	s := New(svc)

	res := synthesize(t, s, Task{
		Query:  "first three rows",
		Class:  ClassBasic,
		Intent: lang.IntentFilter,
		Inputs: salesInputs(t),
	})

	assert.Equal(t, ProvenanceLLM, res.Provenance)
	assert.Equal(t, "mock-model", res.Model)
	assert.Equal(t, 3, res.Program[0].Ops[0].N)
	assert.Equal(t, 1, svc.calls)
}

func TestModelProseFallsBack(t *testing.T) {
	svc := &mockService{resp: "I cannot answer that question."}

	s := New(svc)

	res := synthesize(t, s, Task{
		Query:  "whatever",
		Class:  ClassBasic,
		Intent: lang.IntentUnknown,
		Inputs: salesInputs(t),
	})

	assert.Equal(t, ProvenanceFallback, res.Provenance)
	assert.Equal(t, plan.OpLimit, res.Program[0].Ops[0].Kind)
}

func TestModelUnknownColumnFallsBack(t *testing.T) {
	svc := &mockService{resp: `[{"bind": "result", "from": "sales_data",
		"ops": [{"op": "select", "columns": ["no_such_column"]}]}]`}

	s := New(svc)

	res := synthesize(t, s, Task{
		Query:  "pick a column",
		Class:  ClassBasic,
		Intent: lang.IntentFilter,
		Inputs: salesInputs(t),
	})

	assert.Equal(t, ProvenanceFallback, res.Provenance)
}

func TestModelTransportErrorFallsBack(t *testing.T) {
	svc := &mockService{err: fmt.Errorf("connection refused")}

	s := New(svc)

	res := synthesize(t, s, Task{
		Query:    "sort by sales",
		Class:    ClassBasic,
		Intent:   lang.IntentSort,
		Entities: lang.EntitySet{Columns: []string{"sales"}},
		Inputs:   salesInputs(t),
	})

	assert.Equal(t, ProvenanceFallback, res.Provenance)
	assert.Equal(t, plan.OpSort, res.Program[0].Ops[0].Kind)
}

func TestModelPromptCarriesSchemaAndBudget(t *testing.T) {
	svc := &mockService{resp: `[{"bind": "result", "from": "sales_data", "ops": []}]`}

	s := New(svc)

	synthesize(t, s, Task{
		Query:    "total sales by region",
		Class:    ClassAggregation,
		Intent:   lang.IntentAggregate,
		Entities: lang.EntitySet{Columns: []string{"region", "sales"}},
		Inputs:   salesInputs(t),
	})

	assert.Equal(t, 600, svc.lastReq.MaxTokens)
	assert.Contains(t, svc.lastReq.System, `bind "result"`)
	assert.Contains(t, svc.lastReq.Prompt, "sales_data (4 rows, 3 columns)")
	assert.Contains(t, svc.lastReq.Prompt, "region (categorical)")
	assert.Contains(t, svc.lastReq.Prompt, "total sales by region")
}

func TestCancelledContextDoesNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := &mockService{err: context.Canceled}

	s := New(svc)

	_, err := s.Synthesize(ctx, Task{
		Query:  "anything",
		Class:  ClassBasic,
		Inputs: salesInputs(t),
	})
	require.Error(t, err)
}
