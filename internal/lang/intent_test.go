package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Intent
	}{
		{name: "filter", query: "show me rows where price > 100", want: IntentFilter},
		{name: "aggregate", query: "average amount by region", want: IntentAggregate},
		{name: "sort", query: "arrange by revenue descending", want: IntentSort},
		{name: "summarize", query: "give an overview of the dataset", want: IntentSummarize},
		{name: "visualize", query: "plot revenue per month", want: IntentVisualize},
		{name: "join", query: "combine customers with shipments", want: IntentJoin},
		{name: "statistics", query: "correlation between price and volume", want: IntentStatistics},
		{name: "unknown", query: "hello", want: IntentUnknown},
		{name: "highest score wins", query: "find and select rows where x > 1", want: IntentFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.query))
		})
	}
}

func TestClassifyIntentTieKeepsEarlier(t *testing.T) {
	// sort and join each score one keyword; sort is declared first and
	// must win every time
	for i := 0; i < 10; i++ {
		assert.Equal(t, IntentSort, ClassifyIntent("sort then join"))
	}
}

func TestClassifyAdvancedIntent(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    AdvancedIntent
		matched bool
	}{
		{
			name:    "multi table join",
			query:   "inner join customers with orders",
			want:    AdvancedMultiTableJoin,
			matched: true,
		},
		{
			name:    "complex aggregation",
			query:   "rollup revenue with percentile bands",
			want:    AdvancedComplexAggregation,
			matched: true,
		},
		{
			name:    "time series",
			query:   "moving average of sales over time",
			want:    AdvancedTimeSeries,
			matched: true,
		},
		{
			name:    "window functions",
			query:   "dense_rank within each partition by region",
			want:    AdvancedWindowFunctions,
			matched: true,
		},
		{
			name:    "pivot",
			query:   "pivot the table wide to long",
			want:    AdvancedPivotUnpivot,
			matched: true,
		},
		{
			name:    "conditional logic",
			query:   "case when revenue exceeds target",
			want:    AdvancedConditionalLogic,
			matched: true,
		},
		{
			name:    "implicit temporal hint",
			query:   "monthly revenue breakdown",
			want:    AdvancedTimeSeries,
			matched: true,
		},
		{
			name:    "implicit multiple groups",
			query:   "compare multiple groups side by side",
			want:    AdvancedComplexAggregation,
			matched: true,
		},
		{
			name:    "plain query",
			query:   "hello world",
			matched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyAdvancedIntent(tt.query)
			assert.Equal(t, tt.matched, ok)

			if tt.matched {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsAdvanced(t *testing.T) {
	assert.True(t, IsAdvanced("running total of sales"))
	assert.False(t, IsAdvanced("hello world"))
}
