package lang

import "strings"

// TSOperation is a kind of time-series analysis
type TSOperation string

const (
	TSTrend         TSOperation = "trend"
	TSSeasonality   TSOperation = "seasonality"
	TSMovingAverage TSOperation = "moving_average"
	TSGrowthRate    TSOperation = "growth_rate"
	TSForecast      TSOperation = "forecast"
	TSAnomaly       TSOperation = "anomaly"
)

// Scanned in order; the first group with a hit wins
var tsOperationForms = []keywordGroup{
	{string(TSTrend), []string{"trend", "trending", "direction", "pattern"}},
	{string(TSMovingAverage), []string{"moving average", "rolling", "smooth"}},
	{string(TSGrowthRate), []string{"growth", "rate", "change", "increase", "decrease"}},
	{string(TSSeasonality), []string{"seasonal", "season", "periodic", "cyclical"}},
	{string(TSForecast), []string{"forecast", "predict", "future", "projection"}},
	{string(TSAnomaly), []string{"anomaly", "outlier", "unusual", "abnormal"}},
}

// DetectTSOperation picks the time-series operation a query asks for,
// defaulting to trend analysis when nothing more specific matches.
func DetectTSOperation(query string) TSOperation {
	lower := strings.ToLower(query)

	for _, group := range tsOperationForms {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return TSOperation(group.name)
			}
		}
	}

	return TSTrend
}
