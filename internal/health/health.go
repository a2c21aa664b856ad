// Package health runs named dependency probes for readiness reporting.
package health

import (
	"context"
	"sync"
)

// Status is the outcome of a single probe.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one dependency. The registry stamps the registered
// name onto the returned Status, so implementations may leave it empty.
type Checker func(ctx context.Context) Status

type probe struct {
	name  string
	check Checker
}

// Registry holds named checkers and runs them on demand.
type Registry struct {
	mu     sync.RWMutex
	probes []probe
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker under name. Registration order is the order
// results are reported in.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.probes = append(r.probes, probe{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every registered checker concurrently and reports the
// aggregate health plus per-dependency results in registration order.
// A slow probe delays the response but never blocks the other probes.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	probes := make([]probe, len(r.probes))
	copy(probes, r.probes)
	r.mu.RUnlock()

	statuses = make([]Status, len(probes))

	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := p.check(ctx)
			st.Name = p.name
			statuses[i] = st
		}()
	}
	wg.Wait()

	healthy = true
	for _, st := range statuses {
		if !st.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}
