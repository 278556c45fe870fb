// Package journal appends routing decisions and their outcomes to an
// append-only JSONL file, giving operators an audit trail of what the
// policy chose and what it learned from.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

// DecisionRecord is one journal line: a routing decision plus the outcome
// that fed the learner.
type DecisionRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Node      string        `json:"node"`
	Category  task.Category `json:"category"`
	Persona   string        `json:"persona"`
	Bucket    string        `json:"bucket"`

	Action        task.Action `json:"action"`
	Explored      bool        `json:"explored,omitempty"`
	LowConfidence bool        `json:"low_confidence,omitempty"`

	Success   bool    `json:"success"`
	Timeout   bool    `json:"timeout,omitempty"`
	Cancelled bool    `json:"cancelled,omitempty"`
	Reward    float64 `json:"reward"`
	Quality   float64 `json:"quality"`
	LatencyMS int64   `json:"latency_ms"`
	Cost      float64 `json:"cost"`
	Error     string  `json:"error,omitempty"`
}

// Writer appends records to a JSONL file. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// NewWriter opens (or creates) the journal file for appending.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Writer{file: f}, nil
}

// Append writes one record as a JSON line.
func (w *Writer) Append(rec DecisionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.file.Write(append(data, '\n'))
	return err
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Read loads every record from a journal file, skipping malformed lines.
func Read(path string) ([]DecisionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []DecisionRecord
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var rec DecisionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
