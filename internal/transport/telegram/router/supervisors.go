package router

import (
	"maps"
	"sort"
	"sync"

	"albumrelay/internal/runtime/supervisor"
)

// SupervisorRegistry is a small thread-safe registry of subsystem supervisors,
// read by /stats while the app swaps entries during start, stop and reload.
type SupervisorRegistry struct {
	mu sync.RWMutex
	m  map[string]*supervisor.Supervisor
}

func NewSupervisorRegistry() *SupervisorRegistry {
	return &SupervisorRegistry{m: map[string]*supervisor.Supervisor{}}
}

// Set registers (or replaces) a supervisor under name. If sup is nil, it deletes.
func (r *SupervisorRegistry) Set(name string, sup *supervisor.Supervisor) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sup == nil {
		delete(r.m, name)
		return
	}
	r.m[name] = sup
}

func (r *SupervisorRegistry) Delete(name string) {
	r.Set(name, nil)
}

// Counters returns a copy of every registered supervisor's counters.
func (r *SupervisorRegistry) Counters() map[string]supervisor.Counters {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	snap := maps.Clone(r.m)
	r.mu.RUnlock()
	out := make(map[string]supervisor.Counters, len(snap))
	for name, sup := range snap {
		out[name] = sup.Counters()
	}
	return out
}

// Names returns the registered names, sorted.
func (r *SupervisorRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.m))
	for k := range r.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
