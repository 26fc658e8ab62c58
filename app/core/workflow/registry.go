package workflow

import (
	"strings"
	"sync"

	"crmpilot/app/pkg/logger"
)

// Registry holds the available workflows. Registering a name twice
// replaces the earlier entry.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Workflow
	order []string
}

func NewRegistry() *Registry {
	return &Registry{byKey: map[string]Workflow{}}
}

func (r *Registry) Register(wf Workflow) {
	name := strings.TrimSpace(wf.Name())
	if name == "" {
		logger.Error("[Workflow] refusing to register workflow with empty name")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[name]; exists {
		logger.Info("[Workflow] replacing registered workflow: %s", name)
	} else {
		r.order = append(r.order, name)
	}
	r.byKey[name] = wf
}

func (r *Registry) Get(name string) (Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.byKey[strings.TrimSpace(name)]
	return wf, ok
}

// ListAll returns workflows in registration order.
func (r *Registry) ListAll() []Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Workflow, 0, len(r.order))
	for _, name := range r.order {
		items = append(items, r.byKey[name])
	}
	return items
}
