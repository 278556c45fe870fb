package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

func TestAppendReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "decisions.jsonl")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	records := []DecisionRecord{
		{
			Node:     "implement",
			Category: task.CategoryGenerate,
			Persona:  "balanced",
			Bucket:   "generate/low/balanced",
			Action:   task.Action{Provider: "anthropic", Model: "m", Strategy: task.StrategySingleShot},
			Success:  true,
			Reward:   1.2,
			Quality:  0.8,
		},
		{
			Node:     "review",
			Category: task.CategoryReview,
			Persona:  "reviewer",
			Action:   task.Action{Provider: "openai", Model: "m", Strategy: task.StrategyRetryBackoff},
			Timeout:  true,
			Reward:   -0.3,
			Error:    "deadline exceeded",
		},
	}
	for _, rec := range records {
		if err := w.Append(rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read() = %d records, want 2", len(got))
	}
	if got[0].Node != "implement" || !got[0].Success {
		t.Errorf("first record = %+v", got[0])
	}
	if got[1].Error != "deadline exceeded" || !got[1].Timeout {
		t.Errorf("second record = %+v", got[1])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("Append() did not stamp the record")
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(DecisionRecord{Node: "a", Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// Simulate a torn write at the tail of the file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"node":"torn`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 1 || got[0].Node != "a" {
		t.Errorf("Read() = %+v, want only the intact record", got)
	}
}

func TestReadMissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Errorf("Read() on missing file error = %v, want nil", err)
	}
	if got != nil {
		t.Errorf("Read() = %v, want nil", got)
	}
}
