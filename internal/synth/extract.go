package synth

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// ExtractPlanText pulls candidate plan JSON out of a completion. Models
// wrap answers in prose and code fences despite instructions, so the
// first fenced block wins, then the first balanced JSON array or object,
// then the raw text.
func ExtractPlanText(response string) string {
	if m := fencedBlock.FindStringSubmatch(response); m != nil {
		if inner := strings.TrimSpace(m[1]); inner != "" {
			return inner
		}
	}

	if span := balancedJSONSpan(response); span != "" {
		return span
	}

	return strings.TrimSpace(response)
}

// balancedJSONSpan returns the first complete top-level JSON array or
// object in the text, string-literal aware.
func balancedJSONSpan(text string) string {
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return ""
	}

	var (
		depth    int
		inString bool
		escaped  bool
	)

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}

			continue
		}

		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return ""
}
