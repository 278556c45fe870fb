// Package encoder converts a task request plus running statistics into a
// fixed-length numeric state vector for the routing policy.
//
// Encoding is a pure function: the same logical inputs always produce the
// same vector. Numeric ranges are normalized with fixed, versioned
// constants so vectors stay comparable as the system evolves.
package encoder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/persona"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/tracker"
)

// NormVersion tags the normalization constants used to build a vector.
// Bump it when any constant below changes so persisted value tables can
// be invalidated safely.
const NormVersion = "norm-v1"

// Vector block layout. The blocks sum to Dimension.
const (
	categoryBlock    = 6
	complexityBlock  = 10
	personaBlock     = 8
	providerSlots    = 8
	perProviderBlock = 10
	historyBlock     = 8

	// Dimension is the fixed vector length.
	Dimension = categoryBlock + complexityBlock + personaBlock +
		providerSlots*perProviderBlock + historyBlock // 112
)

// Normalization constants for norm-v1.
const (
	maxPromptChars  = 8192.0
	maxPromptTokens = 4096.0
	maxPromptLines  = 200.0
	maxContextItems = 16.0
	maxContextChars = 32768.0
	maxNestingDepth = 12.0
	maxLatencyMS    = 30000.0
	maxCostPer1K    = 0.25
	maxObservations = 1000.0
	historyUnknown  = 0.5
)

// StateVector is the encoded routing state. Meta carries the
// normalization version tag outside the numeric payload.
type StateVector struct {
	Values [Dimension]float64
	Meta   Meta
}

// Meta describes how a vector was produced.
type Meta struct {
	NormVersion string
	Category    task.Category
	Persona     string
	Bucket      string
}

// EncodingError reports malformed input. It is never retried; callers
// surface it immediately as a bad request.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return "encoding error: " + e.Reason
}

// Encode builds the state vector for one routing decision.
func Encode(req task.Request, profile persona.ConstraintProfile, snap tracker.Snapshot) (StateVector, error) {
	catIdx, err := categoryIndex(req.Category)
	if err != nil {
		return StateVector{}, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return StateVector{}, &EncodingError{Reason: "empty prompt"}
	}

	var v StateVector
	v.Meta = Meta{
		NormVersion: NormVersion,
		Category:    req.Category,
		Persona:     profile.Name,
		Bucket:      BucketID(req, profile),
	}

	offset := 0

	// Task-category one-hot.
	v.Values[offset+catIdx] = 1
	offset += categoryBlock

	// Prompt-complexity scalars.
	encodeComplexity(v.Values[offset:offset+complexityBlock], req)
	offset += complexityBlock

	// Persona one-hot. Custom personas outside the built-in list leave
	// the block zero, which is itself a distinct signal.
	if pIdx, ok := personaIndex(profile.Name); ok {
		v.Values[offset+pIdx] = 1
	}
	offset += personaBlock

	// Per-candidate-provider performance summaries, in stable key order.
	keys := make([]string, 0, len(snap.Records))
	for key := range snap.Records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for slot := 0; slot < providerSlots && slot < len(keys); slot++ {
		rec := snap.Records[keys[slot]]
		encodeProvider(v.Values[offset+slot*perProviderBlock:offset+(slot+1)*perProviderBlock], rec)
	}
	offset += providerSlots * perProviderBlock

	// Recent-outcome history, newest last; missing slots read as unknown.
	for i := 0; i < historyBlock; i++ {
		v.Values[offset+i] = historyUnknown
	}
	hist := snap.History
	if len(hist) > historyBlock {
		hist = hist[len(hist)-historyBlock:]
	}
	for i, success := range hist {
		pos := offset + historyBlock - len(hist) + i
		if success {
			v.Values[pos] = 1
		} else {
			v.Values[pos] = 0
		}
	}

	return v, nil
}

// BucketID maps a request to the coarse state bucket used as the value
// table key: category, complexity tier, and persona.
func BucketID(req task.Request, profile persona.ConstraintProfile) string {
	return string(req.Category) + "/" + complexityTier(req) + "/" + strings.ToLower(profile.Name)
}

// EstimateTokens approximates the token count of the prompt and context.
func EstimateTokens(req task.Request) int {
	chars := len(req.Prompt)
	for _, item := range req.Context {
		chars += len(item.Content)
	}
	return chars / 4
}

func complexityTier(req task.Request) string {
	tokens := EstimateTokens(req)
	switch {
	case tokens < 256:
		return "low"
	case tokens < 1536:
		return "medium"
	default:
		return "high"
	}
}

func encodeComplexity(dst []float64, req task.Request) {
	prompt := req.Prompt
	words := strings.Fields(prompt)

	var contextChars int
	for _, item := range req.Context {
		contextChars += len(item.Content)
	}

	var avgWordLen float64
	if len(words) > 0 {
		avgWordLen = float64(len(prompt)) / float64(len(words))
	}

	dst[0] = clamp01(float64(len(prompt)) / maxPromptChars)
	dst[1] = clamp01(float64(EstimateTokens(req)) / maxPromptTokens)
	dst[2] = clamp01(float64(strings.Count(prompt, "\n")+1) / maxPromptLines)
	dst[3] = clamp01(float64(len(req.Context)) / maxContextItems)
	dst[4] = clamp01(float64(contextChars) / maxContextChars)
	dst[5] = clamp01(float64(nestingDepth(prompt)) / maxNestingDepth)
	dst[6] = clamp01(float64(strings.Count(prompt, "```")) / 6.0)
	dst[7] = clamp01(avgWordLen / 12.0)
	dst[8] = boolToFloat(req.ProviderOverride != "")
	dst[9] = clamp01(float64(len(words)) / (maxPromptChars / 6.0))
}

func encodeProvider(dst []float64, rec tracker.Record) {
	dst[0] = 1 // slot occupied
	dst[1] = clamp01(rec.SuccessRate)
	dst[2] = clamp01(rec.TimeoutRate)
	dst[3] = clamp01(rec.P50LatencyMS / maxLatencyMS)
	dst[4] = clamp01(rec.P95LatencyMS / maxLatencyMS)
	dst[5] = clamp01(rec.CostPer1KTokens / maxCostPer1K)
	dst[6] = clamp01(rec.Quality)
	dst[7] = clamp01(float64(rec.Observations) / maxObservations)
	// dst[8], dst[9] reserved for future norm versions.
}

// nestingDepth measures the deepest brace/bracket/paren nesting in the
// prompt, a cheap proxy for structural complexity of embedded code.
func nestingDepth(s string) int {
	depth, max := 0, 0
	for _, r := range s {
		switch r {
		case '{', '[', '(':
			depth++
			if depth > max {
				max = depth
			}
		case '}', ']', ')':
			if depth > 0 {
				depth--
			}
		}
	}
	return max
}

func categoryIndex(c task.Category) (int, error) {
	for i, known := range task.AllCategories() {
		if c == known {
			return i, nil
		}
	}
	return 0, &EncodingError{Reason: fmt.Sprintf("unknown task category %q", c)}
}

func personaIndex(name string) (int, bool) {
	known := []string{"balanced", "developer", "architect", "reviewer", "security", "performance"}
	name = strings.ToLower(name)
	for i, p := range known {
		if p == name {
			return i, true
		}
	}
	return 0, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
