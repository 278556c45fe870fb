package policy

import (
	"hash/fnv"
	"sync"
	"time"
)

const qtableShards = 32

// Entry is one learned value estimate with its visit count. The visit
// count drives both the learning-rate decay and the confidence used to
// detect cold entries.
type Entry struct {
	Q         float64   `json:"q"`
	Visits    int64     `json:"visits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Confidence maps the visit count into [0,1). Zero visits means zero
// confidence; confidence approaches one as evidence accumulates.
func (e Entry) Confidence() float64 {
	return float64(e.Visits) / (float64(e.Visits) + 10)
}

type qshard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// qtable is a sharded value store keyed by "bucket|action". Updates lock
// only the shard owning the key, never the whole table, so concurrent
// updates for unrelated keys proceed in parallel.
type qtable struct {
	shards [qtableShards]*qshard
}

func newQTable() *qtable {
	t := &qtable{}
	for i := range t.shards {
		t.shards[i] = &qshard{entries: make(map[string]*Entry)}
	}
	return t
}

func (t *qtable) shardFor(key string) *qshard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return t.shards[h.Sum32()%qtableShards]
}

// get returns a copy of the entry for a key.
func (t *qtable) get(key string) (Entry, bool) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// mutate applies fn to the entry for key under the shard lock, creating
// the entry on first touch.
func (t *qtable) mutate(key string, fn func(*Entry)) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &Entry{}
		s.entries[key] = e
	}
	fn(e)
}

// snapshot copies every entry.
func (t *qtable) snapshot() map[string]Entry {
	out := make(map[string]Entry)
	for _, s := range t.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			out[k] = *e
		}
		s.mu.Unlock()
	}
	return out
}

// restore replaces the table contents.
func (t *qtable) restore(entries map[string]Entry) {
	for k, e := range entries {
		e := e
		s := t.shardFor(k)
		s.mu.Lock()
		s.entries[k] = &e
		s.mu.Unlock()
	}
}
