package circuitbreaker

import (
	"sync"

	"github.com/xksnk/selfology-core/pkg/shared/metrics"
)

// Registry indexes breakers by name. It is process-scoped: every service
// that needs a breaker for a dependency looks it up (or creates it) here,
// so ops tooling and the pipeline monitor can inspect and reset them in
// bulk.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*CircuitBreaker)}
}

// GetOrCreate returns the named breaker, creating it from config on first
// use. Subsequent calls with a different config are ignored — the first
// caller wins, matching the "construct once at service startup" pattern.
func (r *Registry) GetOrCreate(config Config) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[config.Name]; ok {
		return cb
	}
	cb := New(config)
	r.breakers[config.Name] = cb
	return cb
}

func (r *Registry) Get(name string) (*CircuitBreaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// AllStats returns a snapshot of every breaker's name, state, and Stats.
type Snapshot struct {
	Name  string
	State State
	Stats Stats
}

func (r *Registry) AllStats() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(r.breakers))
	for name, cb := range r.breakers {
		snapshots = append(snapshots, Snapshot{Name: name, State: cb.State(), Stats: cb.Stats()})
	}
	return snapshots
}

// ExportMetrics snapshots every breaker's state into the Prometheus
// gauge, called periodically by C7's runtime or C13's health checker
// rather than on every state transition.
func (r *Registry) ExportMetrics() {
	for _, s := range r.AllStats() {
		metrics.RecordBreakerState(s.Name, string(s.State))
	}
}

// ResetAll forces every registered breaker back to CLOSED. Used by ops
// tooling and test suites.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}
