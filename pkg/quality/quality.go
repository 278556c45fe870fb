// Package quality derives a quality signal in [0,1] for invocation
// results when the provider does not report one.
package quality

import (
	"strings"
)

// DefaultSignal is used when an output is unremarkable either way.
const DefaultSignal = 0.7

var stubMarkers = []string{
	"todo:",
	"not implemented",
	"placeholder",
	"fill this in",
	"implementation goes here",
	"// ...",
}

// Score inspects an output and returns a heuristic quality signal.
// It penalizes empty or stub-looking outputs and rewards structured,
// substantive ones. The signal feeds the reward loop, so it errs on the
// side of small adjustments rather than sharp judgments.
func Score(output string) float64 {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return 0
	}

	score := DefaultSignal

	lower := strings.ToLower(trimmed)
	for _, marker := range stubMarkers {
		if strings.Contains(lower, marker) {
			score -= 0.2
			break
		}
	}

	// Very short answers to coding tasks rarely carry the work.
	if len(trimmed) < 40 {
		score -= 0.2
	} else if len(trimmed) > 400 {
		score += 0.1
	}

	// Balanced code fences suggest runnable content; an odd count means
	// truncation.
	fences := strings.Count(trimmed, "```")
	switch {
	case fences > 0 && fences%2 == 0:
		score += 0.15
	case fences%2 == 1:
		score -= 0.25
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// FromResult prefers a provider-reported signal and falls back to Score.
func FromResult(reported *float64, output string) float64 {
	if reported != nil {
		q := *reported
		if q < 0 {
			return 0
		}
		if q > 1 {
			return 1
		}
		return q
	}
	return Score(output)
}
