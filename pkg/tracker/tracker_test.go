package tracker

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

func testKey() Key {
	return Key{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Category: task.CategoryGenerate}
}

func TestFirstObservationSeedsAverages(t *testing.T) {
	tr := New()
	tr.Record(Outcome{
		Key:        testKey(),
		Success:    true,
		LatencyMS:  1200,
		Cost:       0.003,
		TokensUsed: 1000,
		Quality:    0.8,
	})

	rec, ok := tr.Get(testKey())
	if !ok {
		t.Fatal("Get() returned no record after first observation")
	}
	if rec.SuccessRate != 1 {
		t.Errorf("SuccessRate = %v, want 1", rec.SuccessRate)
	}
	if rec.P50LatencyMS != 1200 {
		t.Errorf("P50LatencyMS = %v, want 1200", rec.P50LatencyMS)
	}
	if math.Abs(rec.CostPer1KTokens-0.003) > 1e-9 {
		t.Errorf("CostPer1KTokens = %v, want 0.003", rec.CostPer1KTokens)
	}
	if rec.Quality != 0.8 {
		t.Errorf("Quality = %v, want 0.8", rec.Quality)
	}
	if rec.Observations != 1 {
		t.Errorf("Observations = %d, want 1", rec.Observations)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestMovingAverageUpdate(t *testing.T) {
	tr := New(WithDecay(0.5))
	tr.Record(Outcome{Key: testKey(), Success: true, LatencyMS: 100})
	tr.Record(Outcome{Key: testKey(), Success: false, LatencyMS: 200})

	rec, _ := tr.Get(testKey())
	if rec.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", rec.SuccessRate)
	}
	if rec.P50LatencyMS != 150 {
		t.Errorf("P50LatencyMS = %v, want 150", rec.P50LatencyMS)
	}
	if rec.Observations != 2 {
		t.Errorf("Observations = %d, want 2", rec.Observations)
	}
}

func TestTailLatencyTracksSpikes(t *testing.T) {
	tr := New(WithDecay(0.5))
	tr.Record(Outcome{Key: testKey(), Success: true, LatencyMS: 100})

	// A spike moves the tail estimate aggressively but never past the
	// observed value.
	tr.Record(Outcome{Key: testKey(), Success: true, LatencyMS: 200})
	rec, _ := tr.Get(testKey())
	if rec.P95LatencyMS != 200 {
		t.Errorf("P95LatencyMS after spike = %v, want 200", rec.P95LatencyMS)
	}

	// A fast observation barely decays the tail.
	tr.Record(Outcome{Key: testKey(), Success: true, LatencyMS: 100})
	rec, _ = tr.Get(testKey())
	if math.Abs(rec.P95LatencyMS-197.5) > 1e-9 {
		t.Errorf("P95LatencyMS after fast call = %v, want 197.5", rec.P95LatencyMS)
	}
}

func TestTimeoutRate(t *testing.T) {
	tr := New(WithDecay(0.5))
	tr.Record(Outcome{Key: testKey(), Success: false, Timeout: true, LatencyMS: 30000})
	tr.Record(Outcome{Key: testKey(), Success: true, LatencyMS: 500})

	rec, _ := tr.Get(testKey())
	if rec.TimeoutRate != 0.5 {
		t.Errorf("TimeoutRate = %v, want 0.5", rec.TimeoutRate)
	}
}

func TestSnapshotIsolatesCategories(t *testing.T) {
	tr := New()
	genKey := Key{Provider: "a", Model: "m", Category: task.CategoryGenerate}
	revKey := Key{Provider: "a", Model: "m", Category: task.CategoryReview}
	tr.Record(Outcome{Key: genKey, Success: true, LatencyMS: 100})
	tr.Record(Outcome{Key: revKey, Success: false, LatencyMS: 100})

	snap := tr.Snapshot(task.CategoryGenerate)
	if len(snap.Records) != 1 {
		t.Fatalf("Snapshot records = %d, want 1", len(snap.Records))
	}
	if _, ok := snap.Records["a/m"]; !ok {
		t.Error("Snapshot missing record a/m")
	}
	if snap.Observations != 1 {
		t.Errorf("Snapshot observations = %d, want 1", snap.Observations)
	}
	if len(snap.History) != 1 || !snap.History[0] {
		t.Errorf("Snapshot history = %v, want [true]", snap.History)
	}
}

func TestHistoryKeepsRecentOutcomes(t *testing.T) {
	tr := New()
	for i := 0; i < 12; i++ {
		tr.Record(Outcome{Key: testKey(), Success: i >= 4, LatencyMS: 100})
	}
	snap := tr.Snapshot(task.CategoryGenerate)
	if len(snap.History) != historySize {
		t.Fatalf("history length = %d, want %d", len(snap.History), historySize)
	}
	for i, success := range snap.History {
		if !success {
			t.Errorf("history[%d] = false, want true (only recent outcomes kept)", i)
		}
	}
	if got := tr.CategoryObservations(task.CategoryGenerate); got != 12 {
		t.Errorf("CategoryObservations = %d, want 12", got)
	}
}

func TestReset(t *testing.T) {
	tr := New()
	tr.Record(Outcome{Key: testKey(), Success: true, LatencyMS: 100})
	tr.Reset(testKey())
	if _, ok := tr.Get(testKey()); ok {
		t.Error("Get() found record after Reset()")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "performance.json")

	tr := New(WithDecay(0.5))
	tr.Record(Outcome{Key: testKey(), Success: true, LatencyMS: 1200, Cost: 0.01, TokensUsed: 2000, Quality: 0.9})
	tr.Record(Outcome{Key: testKey(), Success: false, LatencyMS: 400})
	if err := tr.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	restored := New(WithDecay(0.5))
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want, _ := tr.Get(testKey())
	got, ok := restored.Get(testKey())
	if !ok {
		t.Fatal("Load() dropped the record")
	}
	if got.SuccessRate != want.SuccessRate || got.P50LatencyMS != want.P50LatencyMS ||
		got.Observations != want.Observations {
		t.Errorf("restored record = %+v, want %+v", got, want)
	}
	if restored.CategoryObservations(task.CategoryGenerate) != 2 {
		t.Errorf("CategoryObservations = %d, want 2",
			restored.CategoryObservations(task.CategoryGenerate))
	}
}

func TestLoadMissingFileStartsCold(t *testing.T) {
	tr := New()
	if err := tr.Load(filepath.Join(t.TempDir(), "nope.json")); err != nil {
		t.Errorf("Load() on missing file error = %v, want nil", err)
	}
}
