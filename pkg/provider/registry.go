package provider

import (
	"sync"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

// StaticRegistry is an in-memory capability catalogue. Capabilities may be
// registered at startup from configuration or added at runtime when a new
// provider/model comes online.
type StaticRegistry struct {
	mu         sync.RWMutex
	caps       []Capability
	categories map[string][]task.Category // capability key -> allowed categories
}

// NewStaticRegistry creates an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		categories: make(map[string][]task.Category),
	}
}

// Register adds a capability. When categories are given, the capability is
// advertised only for those; otherwise it is advertised for every category.
func (r *StaticRegistry) Register(cap Capability, categories ...task.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := cap.Provider + "/" + cap.Model
	for i := range r.caps {
		if r.caps[i].Provider == cap.Provider && r.caps[i].Model == cap.Model {
			r.caps[i] = cap
			r.categories[key] = categories
			return
		}
	}
	r.caps = append(r.caps, cap)
	r.categories[key] = categories
}

// RegisterInvoker advertises every model of an invoker with shared cost and
// context-limit metadata.
func (r *StaticRegistry) RegisterInvoker(inv Invoker, costPer1K float64, maxContextTokens int, categories ...task.Category) {
	for _, model := range inv.Models() {
		r.Register(Capability{
			Provider:         inv.Name(),
			Model:            model,
			MaxContextTokens: maxContextTokens,
			CostPer1KTokens:  costPer1K,
		}, categories...)
	}
}

// ListCandidates returns the capabilities advertised for a category.
func (r *StaticRegistry) ListCandidates(category task.Category) []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Capability
	for _, cap := range r.caps {
		allowed := r.categories[cap.Provider+"/"+cap.Model]
		if len(allowed) == 0 {
			out = append(out, cap)
			continue
		}
		for _, c := range allowed {
			if c == category {
				out = append(out, cap)
				break
			}
		}
	}
	return out
}
