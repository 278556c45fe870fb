package policy

import (
	"errors"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/persona"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/provider"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/tracker"
)

// ErrNoCandidates is returned when the registry/persona intersection is
// empty. The orchestrator treats it as an immediate terminal failure for
// the sub-task.
var ErrNoCandidates = errors.New("no candidate actions available")

// Candidate is one selectable action annotated with the historical cost
// and latency used for tie-breaking and the low-confidence fallback.
type Candidate struct {
	Action       task.Action
	CostPer1K    float64
	P50LatencyMS float64
}

// BuildCandidates intersects registry-advertised capabilities with the
// persona's allowed providers, expanding each surviving capability into
// one candidate per supported execution strategy. An explicit provider
// override narrows the set further.
func BuildCandidates(caps []provider.Capability, profile persona.ConstraintProfile, req task.Request, snap tracker.Snapshot) ([]Candidate, error) {
	var out []Candidate
	for _, cap := range caps {
		if !profile.Allows(cap.Provider) {
			continue
		}
		if req.ProviderOverride != "" && cap.Provider != req.ProviderOverride {
			continue
		}

		cost := cap.CostPer1KTokens
		var p50 float64
		if rec, ok := snap.Records[cap.Provider+"/"+cap.Model]; ok {
			p50 = rec.P50LatencyMS
			if rec.CostPer1KTokens > 0 {
				cost = rec.CostPer1KTokens
			}
		}

		for _, strategy := range task.AllStrategies() {
			if !cap.SupportsStrategy(strategy) {
				continue
			}
			out = append(out, Candidate{
				Action: task.Action{
					Provider: cap.Provider,
					Model:    cap.Model,
					Strategy: strategy,
				},
				CostPer1K:    cost,
				P50LatencyMS: p50,
			})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	return out, nil
}
