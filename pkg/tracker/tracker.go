// Package tracker maintains rolling performance statistics per
// (provider, model, task-category) key. Records feed the state encoder on
// every routing decision and supply the reward signal to the routing policy.
package tracker

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

const (
	shardCount = 32

	// historySize is how many recent outcomes are kept per category for
	// the encoder's history block.
	historySize = 8
)

// Key identifies one performance record.
type Key struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Category task.Category `json:"category"`
}

func (k Key) String() string {
	return k.Provider + "/" + k.Model + "/" + string(k.Category)
}

// Record holds exponentially-weighted moving averages for one key.
// Records are created lazily on first observation and never deleted
// except by explicit Reset.
type Record struct {
	Key Key `json:"key"`

	SuccessRate     float64 `json:"success_rate"`
	TimeoutRate     float64 `json:"timeout_rate"`
	P50LatencyMS    float64 `json:"p50_latency_ms"`
	P95LatencyMS    float64 `json:"p95_latency_ms"`
	CostPer1KTokens float64 `json:"cost_per_1k_tokens"`
	Quality         float64 `json:"quality"`

	Observations int64     `json:"observations"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Outcome is one completed sub-task observation.
type Outcome struct {
	Key        Key
	Success    bool
	Timeout    bool
	LatencyMS  int64
	Cost       float64
	TokensUsed int
	Quality    float64
}

// Snapshot is a read-only view of the statistics relevant to one category,
// taken at encoding time so a decision sees a consistent picture.
type Snapshot struct {
	Category     task.Category
	Records      map[string]Record // keyed by provider/model
	Observations int64             // total observations for the category
	History      []bool            // most recent outcomes, newest last
}

type shard struct {
	mu      sync.Mutex
	records map[Key]*Record
}

type categoryState struct {
	mu           sync.Mutex
	observations int64
	history      []bool
}

// Tracker is safe for concurrent use. Updates lock only the shard owning
// the key, so routing decisions for unrelated keys never serialize.
type Tracker struct {
	shards [shardCount]*shard
	decay  float64
	logger *slog.Logger

	catMu      sync.Mutex
	categories map[task.Category]*categoryState
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithDecay sets the EWMA step (default 0.1).
func WithDecay(decay float64) Option {
	return func(t *Tracker) {
		if decay > 0 && decay <= 1 {
			t.decay = decay
		}
	}
}

// WithLogger sets the tracker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// New creates a tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		decay:      0.1,
		logger:     slog.Default(),
		categories: make(map[task.Category]*categoryState),
	}
	for i := range t.shards {
		t.shards[i] = &shard{records: make(map[Key]*Record)}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) shardFor(k Key) *shard {
	h := fnv.New32a()
	h.Write([]byte(k.String()))
	return t.shards[h.Sum32()%shardCount]
}

func (t *Tracker) categoryFor(c task.Category) *categoryState {
	t.catMu.Lock()
	defer t.catMu.Unlock()
	cs, ok := t.categories[c]
	if !ok {
		cs = &categoryState{}
		t.categories[c] = cs
	}
	return cs
}

// Record folds one outcome into the moving averages for its key.
func (t *Tracker) Record(o Outcome) {
	s := t.shardFor(o.Key)
	s.mu.Lock()
	rec, ok := s.records[o.Key]
	if !ok {
		rec = &Record{Key: o.Key}
		s.records[o.Key] = rec
	}
	t.apply(rec, o)
	s.mu.Unlock()

	cs := t.categoryFor(o.Key.Category)
	cs.mu.Lock()
	cs.observations++
	cs.history = append(cs.history, o.Success)
	if len(cs.history) > historySize {
		cs.history = cs.history[len(cs.history)-historySize:]
	}
	cs.mu.Unlock()

	t.logger.Debug("outcome recorded",
		"key", o.Key.String(),
		"success", o.Success,
		"latency_ms", o.LatencyMS,
		"quality", o.Quality)
}

// apply must be called with the owning shard locked.
func (t *Tracker) apply(rec *Record, o Outcome) {
	step := t.decay
	if rec.Observations == 0 {
		// First observation seeds the averages directly.
		step = 1
	}

	rec.SuccessRate += step * (boolToFloat(o.Success) - rec.SuccessRate)
	rec.TimeoutRate += step * (boolToFloat(o.Timeout) - rec.TimeoutRate)

	lat := float64(o.LatencyMS)
	rec.P50LatencyMS += step * (lat - rec.P50LatencyMS)
	// Asymmetric step keeps the estimate near the upper tail.
	if lat > rec.P95LatencyMS {
		rec.P95LatencyMS += 5 * step * (lat - rec.P95LatencyMS)
		if rec.P95LatencyMS > lat {
			rec.P95LatencyMS = lat
		}
	} else {
		rec.P95LatencyMS += 0.05 * step * (lat - rec.P95LatencyMS)
	}

	if o.TokensUsed > 0 {
		costPer1K := o.Cost / (float64(o.TokensUsed) / 1000.0)
		rec.CostPer1KTokens += step * (costPer1K - rec.CostPer1KTokens)
	}
	rec.Quality += step * (o.Quality - rec.Quality)

	rec.Observations++
	rec.UpdatedAt = time.Now().UTC()
}

// Get returns a copy of the record for a key.
func (t *Tracker) Get(k Key) (Record, bool) {
	s := t.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[k]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Reset deletes the record for a key. This is the only deletion path.
func (t *Tracker) Reset(k Key) {
	s := t.shardFor(k)
	s.mu.Lock()
	delete(s.records, k)
	s.mu.Unlock()
}

// Snapshot copies every record for a category.
func (t *Tracker) Snapshot(category task.Category) Snapshot {
	snap := Snapshot{
		Category: category,
		Records:  make(map[string]Record),
	}
	for _, s := range t.shards {
		s.mu.Lock()
		for k, rec := range s.records {
			if k.Category == category {
				snap.Records[k.Provider+"/"+k.Model] = *rec
			}
		}
		s.mu.Unlock()
	}

	cs := t.categoryFor(category)
	cs.mu.Lock()
	snap.Observations = cs.observations
	snap.History = append([]bool(nil), cs.history...)
	cs.mu.Unlock()

	return snap
}

// All copies every record across categories.
func (t *Tracker) All() []Record {
	var out []Record
	for _, s := range t.shards {
		s.mu.Lock()
		for _, rec := range s.records {
			out = append(out, *rec)
		}
		s.mu.Unlock()
	}
	return out
}

// CategoryObservations returns the number of recorded outcomes for a
// category; the policy uses it to decay exploration.
func (t *Tracker) CategoryObservations(category task.Category) int64 {
	cs := t.categoryFor(category)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.observations
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
