// Package lang analyzes natural-language queries: intent classification,
// entity extraction, date-column detection, and time-series operation
// detection. All matching is keyword and pattern based so results are
// deterministic and need no model calls.
package lang

import "strings"

// Intent is a basic query intent
type Intent string

const (
	IntentFilter     Intent = "filter"
	IntentAggregate  Intent = "aggregate"
	IntentSort       Intent = "sort"
	IntentSummarize  Intent = "summarize"
	IntentVisualize  Intent = "visualize"
	IntentJoin       Intent = "join"
	IntentStatistics Intent = "statistics"
	IntentUnknown    Intent = "unknown"
)

// AdvancedIntent is a complex-operation intent
type AdvancedIntent string

const (
	AdvancedMultiTableJoin     AdvancedIntent = "multi_table_join"
	AdvancedComplexAggregation AdvancedIntent = "complex_aggregation"
	AdvancedTimeSeries         AdvancedIntent = "time_series_analysis"
	AdvancedWindowFunctions    AdvancedIntent = "window_functions"
	AdvancedPivotUnpivot       AdvancedIntent = "pivot_unpivot"
	AdvancedConditionalLogic   AdvancedIntent = "conditional_logic"
)

type keywordGroup struct {
	name     string
	keywords []string
}

// Keyword groups are ordered slices, not maps. Scoring keeps the first
// highest-scoring group, so classification is stable for a given query.
var basicIntents = []keywordGroup{
	{string(IntentFilter), []string{"filter", "where", "show me", "find", "select", "get"}},
	{string(IntentAggregate), []string{"sum", "count", "average", "mean", "total", "group by", "aggregate"}},
	{string(IntentSort), []string{"sort", "order", "arrange", "rank"}},
	{string(IntentSummarize), []string{"summary", "describe", "overview", "statistics", "stats"}},
	{string(IntentVisualize), []string{"plot", "chart", "graph", "visualize", "show"}},
	{string(IntentJoin), []string{"join", "merge", "combine", "relate"}},
	{string(IntentStatistics), []string{"correlation", "regression", "analysis", "trend", "pattern"}},
}

var advancedIntents = []keywordGroup{
	{string(AdvancedMultiTableJoin), []string{
		"join", "merge", "combine", "relate", "match", "link",
		"inner join", "left join", "outer join", "cross join",
	}},
	{string(AdvancedComplexAggregation), []string{
		"group by multiple", "nested aggregation", "rollup", "cube",
		"percentile", "quantile", "cumulative", "running total",
	}},
	{string(AdvancedTimeSeries), []string{
		"trend", "time series", "over time", "temporal", "seasonal",
		"moving average", "growth rate", "forecast", "predict",
	}},
	{string(AdvancedWindowFunctions), []string{
		"rank", "row_number", "dense_rank", "lag", "lead",
		"partition by", "window", "running", "cumulative",
	}},
	{string(AdvancedPivotUnpivot), []string{
		"pivot", "unpivot", "reshape", "transpose", "crosstab",
		"wide to long", "long to wide",
	}},
	{string(AdvancedConditionalLogic), []string{
		"case when", "if then", "conditional", "where case",
		"multiple conditions", "nested conditions",
	}},
}

// Hints that imply a time dimension even when no advanced keyword matched
var temporalHints = []string{"daily", "weekly", "monthly", "yearly", "time", "date"}

func scoreGroups(query string, groups []keywordGroup) (string, int) {
	best := ""
	bestScore := 0

	for _, group := range groups {
		score := 0

		for _, kw := range group.keywords {
			if strings.Contains(query, kw) {
				score++
			}
		}

		if score > bestScore {
			bestScore = score
			best = group.name
		}
	}

	return best, bestScore
}

// ClassifyIntent scores every basic intent by keyword hits and returns
// the highest scorer. Ties keep the earlier intent. Queries matching no
// keyword classify as unknown.
func ClassifyIntent(query string) Intent {
	name, score := scoreGroups(strings.ToLower(query), basicIntents)
	if score == 0 {
		return IntentUnknown
	}

	return Intent(name)
}

// ClassifyAdvancedIntent scores the advanced intent groups. When no
// keyword matches it falls back to two implicit signals: temporal hint
// words imply time-series analysis, and "multiple" together with "group"
// implies complex aggregation. The second return is false when nothing
// matched at all.
func ClassifyAdvancedIntent(query string) (AdvancedIntent, bool) {
	lower := strings.ToLower(query)

	name, score := scoreGroups(lower, advancedIntents)
	if score > 0 {
		return AdvancedIntent(name), true
	}

	for _, hint := range temporalHints {
		if strings.Contains(lower, hint) {
			return AdvancedTimeSeries, true
		}
	}

	if strings.Contains(lower, "multiple") && strings.Contains(lower, "group") {
		return AdvancedComplexAggregation, true
	}

	return "", false
}

// IsAdvanced reports whether a query should take the advanced path
func IsAdvanced(query string) bool {
	_, ok := ClassifyAdvancedIntent(query)
	return ok
}
