// Package policy implements the learned routing decision core: a tabular
// Q-function over (state bucket, action) keys, epsilon-greedy selection
// with a decaying exploration rate, and an incremental update rule fed by
// observed rewards.
package policy

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/encoder"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/persona"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

// Config holds the learning tunables. None of these are pinned by theory;
// they are deliberately configuration, not constants.
type Config struct {
	// EpsilonBase is the exploration rate with zero observations.
	EpsilonBase float64 `yaml:"epsilon_base"`
	// EpsilonFloor is the minimum exploration rate. Exploration never
	// fully stops so catalogue changes are eventually discovered.
	EpsilonFloor float64 `yaml:"epsilon_floor"`
	// EpsilonDecay scales how fast epsilon approaches the floor as
	// observations accumulate for a category.
	EpsilonDecay float64 `yaml:"epsilon_decay"`

	// AlphaFloor bounds the learning-rate decay so estimates stay
	// adaptive to provider drift.
	AlphaFloor float64 `yaml:"alpha_floor"`

	// OptimisticPrior is the default value for entries below
	// ColdStartVisits, encouraging trial of new actions.
	OptimisticPrior float64 `yaml:"optimistic_prior"`
	// ColdStartVisits is the visit threshold under which an entry is
	// considered cold.
	ColdStartVisits int64 `yaml:"cold_start_visits"`

	// MinConfidence is the per-entry confidence under which a selection
	// is flagged low-confidence.
	MinConfidence float64 `yaml:"min_confidence"`
	// ExplorationBudget caps exploratory picks per category; zero means
	// unlimited.
	ExplorationBudget int64 `yaml:"exploration_budget"`

	// NormLatencyMS and NormCost normalize reward inputs to [0,1].
	NormLatencyMS float64 `yaml:"norm_latency_ms"`
	NormCost      float64 `yaml:"norm_cost"`
}

// DefaultConfig returns the default learning tunables.
func DefaultConfig() Config {
	return Config{
		EpsilonBase:       0.30,
		EpsilonFloor:      0.05,
		EpsilonDecay:      0.01,
		AlphaFloor:        0.05,
		OptimisticPrior:   1.0,
		ColdStartVisits:   3,
		MinConfidence:     0.15,
		ExplorationBudget: 0,
		NormLatencyMS:     30000,
		NormCost:          1.0,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.EpsilonBase <= 0 {
		c.EpsilonBase = def.EpsilonBase
	}
	if c.EpsilonFloor <= 0 {
		c.EpsilonFloor = def.EpsilonFloor
	}
	if c.EpsilonDecay <= 0 {
		c.EpsilonDecay = def.EpsilonDecay
	}
	if c.AlphaFloor <= 0 {
		c.AlphaFloor = def.AlphaFloor
	}
	if c.OptimisticPrior == 0 {
		c.OptimisticPrior = def.OptimisticPrior
	}
	if c.ColdStartVisits <= 0 {
		c.ColdStartVisits = def.ColdStartVisits
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = def.MinConfidence
	}
	if c.NormLatencyMS <= 0 {
		c.NormLatencyMS = def.NormLatencyMS
	}
	if c.NormCost <= 0 {
		c.NormCost = def.NormCost
	}
}

// Selection is the outcome of one routing decision.
type Selection struct {
	Action     task.Action
	Q          float64
	Confidence float64

	// Explored marks a non-greedy (random) pick.
	Explored bool

	// LowConfidence marks a selection made despite insufficient evidence.
	// It is logged, never blocks execution.
	LowConfidence bool
}

type categoryCounters struct {
	observations int64
	explorations int64
}

// Policy is the routing decision core. SelectAction and Update are
// CPU-only and never block on I/O; persistence is an explicit Save call.
type Policy struct {
	cfg    Config
	table  *qtable
	logger *slog.Logger

	mu         sync.Mutex
	rng        *rand.Rand
	categories map[task.Category]*categoryCounters
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the policy logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) { p.logger = logger }
}

// WithRandSeed makes exploration deterministic, for tests.
func WithRandSeed(seed int64) Option {
	return func(p *Policy) { p.rng = rand.New(rand.NewSource(seed)) }
}

// New creates a policy.
func New(cfg Config, opts ...Option) *Policy {
	cfg.applyDefaults()
	p := &Policy{
		cfg:        cfg,
		table:      newQTable(),
		logger:     slog.Default(),
		rng:        rand.New(rand.NewSource(rand.Int63())),
		categories: make(map[task.Category]*categoryCounters),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Policy) countersFor(c task.Category) *categoryCounters {
	cc, ok := p.categories[c]
	if !ok {
		cc = &categoryCounters{}
		p.categories[c] = cc
	}
	return cc
}

// Epsilon returns the current exploration rate for a category. It decays
// monotonically with the observation count and is floored so exploration
// never fully stops.
func (p *Policy) Epsilon(category task.Category) float64 {
	p.mu.Lock()
	obs := p.countersFor(category).observations
	p.mu.Unlock()
	return p.epsilonAt(obs)
}

func (p *Policy) epsilonAt(observations int64) float64 {
	eps := p.cfg.EpsilonFloor +
		(p.cfg.EpsilonBase-p.cfg.EpsilonFloor)/(1+p.cfg.EpsilonDecay*float64(observations))
	if eps < p.cfg.EpsilonFloor {
		eps = p.cfg.EpsilonFloor
	}
	return eps
}

// SelectAction picks one candidate under the exploration policy.
// It returns ErrNoCandidates only on an empty candidate set; any other
// evidence shortfall degrades to a flagged selection, never an error:
// routing must not block on missing confidence.
func (p *Policy) SelectAction(state encoder.StateVector, candidates []Candidate) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoCandidates
	}

	category := state.Meta.Category
	p.mu.Lock()
	cc := p.countersFor(category)
	obs := cc.observations
	explorations := cc.explorations
	roll := p.rng.Float64()
	pick := p.rng.Intn(len(candidates))
	p.mu.Unlock()

	budgetLeft := p.cfg.ExplorationBudget == 0 || explorations < p.cfg.ExplorationBudget

	if roll < p.epsilonAt(obs) && budgetLeft {
		c := candidates[pick]
		entry, _ := p.table.get(qKey(state.Meta.Bucket, c.Action))
		p.mu.Lock()
		cc.explorations++
		p.mu.Unlock()
		p.logger.Debug("explore",
			"bucket", state.Meta.Bucket,
			"action", c.Action.Key(),
			"epsilon", p.epsilonAt(obs))
		return Selection{
			Action:     c.Action,
			Q:          p.valueOf(entry),
			Confidence: entry.Confidence(),
			Explored:   true,
		}, nil
	}

	best, bestEntry := p.greedy(state.Meta.Bucket, candidates)
	sel := Selection{
		Action:     best.Action,
		Q:          p.valueOf(bestEntry),
		Confidence: bestEntry.Confidence(),
	}

	if p.allBelowMinConfidence(state.Meta.Bucket, candidates) && !budgetLeft {
		cheapest := lowestCost(candidates)
		entry, _ := p.table.get(qKey(state.Meta.Bucket, cheapest.Action))
		sel = Selection{
			Action:        cheapest.Action,
			Q:             p.valueOf(entry),
			Confidence:    entry.Confidence(),
			LowConfidence: true,
		}
		p.logger.Warn("low-confidence selection",
			"bucket", state.Meta.Bucket,
			"action", sel.Action.Key())
	}

	return sel, nil
}

// greedy returns the argmax candidate; ties break by lowest historical
// cost, then lowest latency.
func (p *Policy) greedy(bucket string, candidates []Candidate) (Candidate, Entry) {
	best := candidates[0]
	bestEntry, _ := p.table.get(qKey(bucket, best.Action))
	bestQ := p.valueOf(bestEntry)

	for _, c := range candidates[1:] {
		entry, _ := p.table.get(qKey(bucket, c.Action))
		q := p.valueOf(entry)
		switch {
		case q > bestQ+1e-9:
			best, bestEntry, bestQ = c, entry, q
		case math.Abs(q-bestQ) <= 1e-9:
			if c.CostPer1K < best.CostPer1K-1e-12 ||
				(math.Abs(c.CostPer1K-best.CostPer1K) <= 1e-12 && c.P50LatencyMS < best.P50LatencyMS) {
				best, bestEntry, bestQ = c, entry, q
			}
		}
	}
	return best, bestEntry
}

// valueOf returns the entry's value, substituting the optimistic prior
// for cold entries so new actions are not starved.
func (p *Policy) valueOf(e Entry) float64 {
	if e.Visits < p.cfg.ColdStartVisits {
		return p.cfg.OptimisticPrior
	}
	return e.Q
}

func (p *Policy) allBelowMinConfidence(bucket string, candidates []Candidate) bool {
	for _, c := range candidates {
		entry, _ := p.table.get(qKey(bucket, c.Action))
		if entry.Confidence() >= p.cfg.MinConfidence {
			return false
		}
	}
	return true
}

func lowestCost(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.CostPer1K < best.CostPer1K ||
			(c.CostPer1K == best.CostPer1K && c.P50LatencyMS < best.P50LatencyMS) {
			best = c
		}
	}
	return best
}

// Update folds an observed reward into the value estimate for the
// (state bucket, action) key. The step size decays with the visit count
// but is floored so the estimate keeps tracking provider drift.
func (p *Policy) Update(state encoder.StateVector, action task.Action, reward float64) {
	key := qKey(state.Meta.Bucket, action)
	p.table.mutate(key, func(e *Entry) {
		e.Visits++
		alpha := 1 / float64(e.Visits)
		if alpha < p.cfg.AlphaFloor {
			alpha = p.cfg.AlphaFloor
		}
		e.Q += alpha * (reward - e.Q)
		e.UpdatedAt = nowUTC()
	})

	p.mu.Lock()
	p.countersFor(state.Meta.Category).observations++
	p.mu.Unlock()

	p.logger.Debug("value updated", "key", key, "reward", reward)
}

// Entry returns the value estimate for a (bucket, action) pair.
func (p *Policy) Entry(bucket string, action task.Action) (Entry, bool) {
	return p.table.get(qKey(bucket, action))
}

// Snapshot copies every value-table entry, keyed by "bucket|action".
func (p *Policy) Snapshot() map[string]Entry {
	return p.table.snapshot()
}

// RewardInput is the observed outcome a reward is computed from.
type RewardInput struct {
	Success   bool
	LatencyMS int64
	Cost      float64
	Quality   float64
}

// ComputeReward applies the persona's weights:
// w1*success - w2*latency - w3*cost + w4*quality, with latency and cost
// normalized to [0,1]. Failure is itself an informative reward.
func (p *Policy) ComputeReward(weights persona.RewardWeights, in RewardInput) float64 {
	latNorm := clamp01(float64(in.LatencyMS) / p.cfg.NormLatencyMS)
	costNorm := clamp01(in.Cost / p.cfg.NormCost)

	var success float64
	if in.Success {
		success = 1
	}
	return weights.Success*success -
		weights.Latency*latNorm -
		weights.Cost*costNorm +
		weights.Quality*clamp01(in.Quality)
}

func qKey(bucket string, action task.Action) string {
	return bucket + "|" + action.Key()
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
