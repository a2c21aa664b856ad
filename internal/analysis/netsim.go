package analysis

import (
	"math/rand"
	"sync"
)

// SimulatedNetwork fabricates network coordination data for environments
// without a real capture feed. It preserves the original mock feed as a
// pluggable source: absent by default, enabled with NETWORK_SIM=true.
// Draws come from a seeded generator so runs are reproducible.
type SimulatedNetwork struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedNetwork creates a simulator seeded for reproducible output.
func NewSimulatedNetwork(seed int64) *SimulatedNetwork {
	return &SimulatedNetwork{rng: rand.New(rand.NewSource(seed))}
}

// Sample returns one synthetic network observation.
func (s *SimulatedNetwork) Sample() *NetworkData {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &NetworkData{
		SimultaneousPosts: s.rng.Intn(16),
		SharedContent: SharedContent{
			SuspiciousPercentage: s.rng.Float64(),
		},
	}
}
