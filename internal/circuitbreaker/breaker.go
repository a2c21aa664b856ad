// Package circuitbreaker guards a flaky dependency with a
// closed/open/half-open circuit so repeated failures stop costing latency.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the circuit state.
type State int

const (
	StateClosed   State = iota // requests flow through
	StateOpen                  // tripped, requests rejected
	StateHalfOpen              // cooling down, one probe in flight
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sift",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by breaker name, from-state, and to-state.",
}, []string{"name", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

// Breaker guards one dependency. It trips open after threshold consecutive
// failures, rejects requests for the cooldown period, then admits a single
// probe. A successful probe closes the circuit; a failed one reopens it.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// New creates a breaker named for the dependency it guards. The name
// labels the transition metric.
func New(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown}
}

// Allow reports whether the caller should attempt the dependency.
// An open circuit whose cooldown has elapsed admits one probe and moves
// to half-open; further callers are rejected until the probe resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
}

// RecordFailure counts a failure and trips the circuit once the threshold
// is reached. A failed half-open probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++

	if b.state == StateHalfOpen {
		b.trip()
		return
	}
	if b.state == StateClosed && b.failures >= b.threshold {
		b.trip()
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// trip opens the circuit and starts the cooldown clock. Caller holds b.mu.
func (b *Breaker) trip() {
	b.openedAt = time.Now()
	b.transition(StateOpen)
}

// transition records a state change. Caller holds b.mu.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	transitionsTotal.WithLabelValues(b.name, b.state.String(), to.String()).Inc()
	b.state = to
}
