package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/synth"
	"github.com/tabiq-dev/tabiq/internal/table"
)

// Advice thresholds. Below these the straightforward plan is fine and
// the advisor stays quiet.
const (
	adviseSizeMB      = 100
	adviseRows        = 100_000
	adviseGroupRows   = 10_000
	adviseJoinRows    = 50_000
	adviseNumericCols = 10
)

// Stats describe the dataset the advisor inspected
type Stats struct {
	SizeMB  float64 `json:"size_mb"`
	Rows    int     `json:"rows"`
	Columns int     `json:"columns"`
}

// Recommendation is one piece of advice about a query
type Recommendation struct {
	Type       string `json:"type"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
}

// Advice bundles recommendations with a rewritten program. The program
// is advisory output, the caller decides whether to run it.
type Advice struct {
	Query           string           `json:"query"`
	Stats           Stats            `json:"dataset_stats"`
	Recommendations []Recommendation `json:"recommendations"`
	Program         string           `json:"optimized_program,omitempty"`
	Provenance      string           `json:"provenance,omitempty"`
	Model           string           `json:"model,omitempty"`
}

// Advise inspects a query against the dataset it would run over and
// reports size and shape driven recommendations plus a rewritten
// program. The rewrite falls back to the original shape when no model
// is available.
func (e *Engine) Advise(ctx context.Context, query string, input table.Named) (*Advice, error) {
	if input.Table == nil {
		return nil, errors.NewInsufficientInputs("no input table bound")
	}

	t := input.Table

	advice := &Advice{
		Query: query,
		Stats: Stats{
			SizeMB:  float64(t.MemSize()) / (1 << 20),
			Rows:    t.NumRows(),
			Columns: t.NumCols(),
		},
	}

	advice.Recommendations = recommend(query, t, advice.Stats)

	task := e.analyze(query, []table.Named{input})
	task.Class = synth.ClassOptimization

	syn, err := e.synth.Synthesize(ctx, task)
	if err != nil {
		return nil, err
	}

	advice.Program = syn.PlanText
	advice.Provenance = syn.Provenance
	advice.Model = syn.Model

	return advice, nil
}

func recommend(query string, t *table.Table, stats Stats) []Recommendation {
	var recs []Recommendation

	lower := strings.ToLower(query)

	if stats.SizeMB > adviseSizeMB {
		recs = append(recs, Recommendation{
			Type:       "memory_optimization",
			Suggestion: "Filter early or select fewer columns to shrink the working set",
			Reason:     fmt.Sprintf("Dataset occupies %.1fMB in memory", stats.SizeMB),
		})
	}

	if stats.Rows > adviseRows {
		recs = append(recs, Recommendation{
			Type:       "indexing",
			Suggestion: "Limit or filter rows before downstream steps",
			Reason:     fmt.Sprintf("Dataset has %d rows", stats.Rows),
		})
	}

	if strings.Contains(lower, "group") && stats.Rows > adviseGroupRows {
		recs = append(recs, Recommendation{
			Type:       "aggregation_optimization",
			Suggestion: "Group by low-cardinality columns and aggregate only the columns you need",
			Reason:     fmt.Sprintf("Grouping %d rows is expensive", stats.Rows),
		})
	}

	if (strings.Contains(lower, "join") || strings.Contains(lower, "merge")) && stats.Rows > adviseJoinRows {
		recs = append(recs, Recommendation{
			Type:       "join_optimization",
			Suggestion: "Join on a single shared key and drop unused columns first",
			Reason:     fmt.Sprintf("Joining %d rows is expensive", stats.Rows),
		})
	}

	if n := len(t.NumericColumns()); n > adviseNumericCols {
		recs = append(recs, Recommendation{
			Type:       "column_selection",
			Suggestion: "Select only the columns the query needs",
			Reason:     fmt.Sprintf("Dataset has %d numeric columns", n),
		})
	}

	return recs
}
