package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

// fileState is the on-disk shape of the performance table.
type fileState struct {
	Records    []Record                           `json:"records"`
	Categories map[task.Category]categorySnapshot `json:"categories"`
}

type categorySnapshot struct {
	Observations int64  `json:"observations"`
	History      []bool `json:"history"`
}

// Save writes the performance table atomically (temp file + rename) so a
// crash mid-write never leaves a truncated table behind.
func (t *Tracker) Save(path string) error {
	state := fileState{Categories: make(map[task.Category]categorySnapshot)}

	for _, s := range t.shards {
		s.mu.Lock()
		for _, rec := range s.records {
			state.Records = append(state.Records, *rec)
		}
		s.mu.Unlock()
	}

	t.catMu.Lock()
	for cat, cs := range t.categories {
		cs.mu.Lock()
		state.Categories[cat] = categorySnapshot{
			Observations: cs.observations,
			History:      append([]bool(nil), cs.history...),
		}
		cs.mu.Unlock()
	}
	t.catMu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal performance table: %w", err)
	}
	return atomicWrite(path, data)
}

// Load replaces the in-memory table with the persisted one. A missing
// file is not an error; the tracker simply starts cold.
func (t *Tracker) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse performance table %s: %w", path, err)
	}

	for _, rec := range state.Records {
		rec := rec
		s := t.shardFor(rec.Key)
		s.mu.Lock()
		s.records[rec.Key] = &rec
		s.mu.Unlock()
	}

	t.catMu.Lock()
	for cat, snap := range state.Categories {
		t.categories[cat] = &categoryState{
			observations: snap.Observations,
			history:      append([]bool(nil), snap.History...),
		}
	}
	t.catMu.Unlock()

	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}
