package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

// fileState is the on-disk shape of the value table. Both the entries and
// the per-category counters survive restarts so the policy does not
// cold-start on every deployment.
type fileState struct {
	NormVersion string                   `json:"norm_version"`
	Entries     map[string]Entry         `json:"entries"`
	Categories  map[task.Category]counts `json:"categories"`
}

type counts struct {
	Observations int64 `json:"observations"`
	Explorations int64 `json:"explorations"`
}

// Save writes the value table atomically (temp file + rename).
func (p *Policy) Save(path string, normVersion string) error {
	state := fileState{
		NormVersion: normVersion,
		Entries:     p.table.snapshot(),
		Categories:  make(map[task.Category]counts),
	}

	p.mu.Lock()
	for cat, cc := range p.categories {
		state.Categories[cat] = counts{
			Observations: cc.observations,
			Explorations: cc.explorations,
		}
	}
	p.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal value table: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".qtable-tmp-*")
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

// Load restores a persisted value table. Tables written under a different
// normalization version are discarded: their state buckets are no longer
// comparable. A missing file means a cold start and is not an error.
func (p *Policy) Load(path string, normVersion string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse value table %s: %w", path, err)
	}
	if state.NormVersion != normVersion {
		p.logger.Warn("discarding value table with stale normalization version",
			"have", state.NormVersion, "want", normVersion)
		return nil
	}

	p.table.restore(state.Entries)

	p.mu.Lock()
	for cat, c := range state.Categories {
		p.categories[cat] = &categoryCounters{
			observations: c.Observations,
			explorations: c.Explorations,
		}
	}
	p.mu.Unlock()

	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
