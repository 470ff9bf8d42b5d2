package lang

import (
	"regexp"
	"strings"

	"github.com/tabiq-dev/tabiq/internal/table"
)

// Column name fragments that suggest a time dimension
var dateNameFragments = []string{"date", "time", "created", "modified", "timestamp", "when"}

// Patterns a cell value can match to count as date-like, anchored at the
// start of the value.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`),
	regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}`),
	regexp.MustCompile(`^\d{1,2}\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{4}\b`),
	regexp.MustCompile(`^(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+\d{4}\b`),
}

const dateSampleSize = 100

// DetectDateColumn picks the primary time column of a table. Candidates
// are collected in three priority bands: columns already typed temporal,
// then columns whose names contain a date fragment, then columns the
// query mentions whose sampled values look like dates. The first
// candidate wins, so a typed temporal column always beats a name match.
func DetectDateColumn(t *table.Table, query string) (string, bool) {
	var candidates []string

	for _, name := range t.ColumnNames() {
		if t.ColumnType(name) == table.TypeTemporal {
			candidates = append(candidates, name)
		}
	}

	for _, name := range t.ColumnNames() {
		lower := strings.ToLower(name)
		for _, fragment := range dateNameFragments {
			if strings.Contains(lower, fragment) {
				candidates = append(candidates, name)
				break
			}
		}
	}

	queryLower := strings.ToLower(query)

	for _, name := range t.ColumnNames() {
		if !strings.Contains(queryLower, strings.ToLower(name)) {
			continue
		}

		if samplesLookLikeDates(t.SampleStrings(name, dateSampleSize)) {
			candidates = append(candidates, name)
		}
	}

	if len(candidates) == 0 {
		return "", false
	}

	return candidates[0], true
}

func samplesLookLikeDates(samples []string) bool {
	for _, s := range samples {
		for _, pattern := range datePatterns {
			if pattern.MatchString(s) {
				return true
			}
		}
	}

	return false
}
