package analysis

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for demo and test use.
type MemoryStore struct {
	mu      sync.RWMutex
	results []*Result // insertion order, oldest first
	byID    map[string]*Result
}

// NewMemoryStore creates an in-memory analysis store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Result)}
}

func (s *MemoryStore) Save(_ context.Context, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := copyResult(result)
	s.results = append(s.results, r)
	s.byID[r.ID] = r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyResult(r), nil
}

func (s *MemoryStore) SetResolved(_ context.Context, id string, resolved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	r.Resolved = resolved
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int, opts ...ListOption) ([]*Result, error) {
	o := applyListOpts(opts)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Result
	for i := len(s.results) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.results[i]
		if o.platform != "" && r.Platform != o.platform {
			continue
		}
		if o.level != "" && r.RiskLevel != o.level {
			continue
		}
		if o.cursor != nil && !beforeCursor(r, o.cursor.CreatedAt, o.cursor.ID) {
			continue
		}
		out = append(out, copyResult(r))
	}
	return out, nil
}

func (s *MemoryStore) Recent(_ context.Context, since time.Time, platform string, limit int) ([]*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Result
	for i := len(s.results) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.results[i]
		if !r.Timestamp.After(since) {
			continue
		}
		if platform != "" && r.Platform != platform {
			continue
		}
		out = append(out, copyResult(r))
	}
	return out, nil
}

func (s *MemoryStore) CountByLevel(_ context.Context, since time.Time, platform string) (map[RiskLevel]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[RiskLevel]int)
	for _, r := range s.results {
		if !r.Timestamp.After(since) {
			continue
		}
		if platform != "" && r.Platform != platform {
			continue
		}
		counts[r.RiskLevel]++
	}
	return counts, nil
}

func (s *MemoryStore) PlatformStats(_ context.Context, since time.Time) ([]PlatformStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type agg struct {
		count int
		sum   int
	}
	byPlatform := make(map[string]*agg)
	var order []string
	for _, r := range s.results {
		if !r.Timestamp.After(since) {
			continue
		}
		a, ok := byPlatform[r.Platform]
		if !ok {
			a = &agg{}
			byPlatform[r.Platform] = a
			order = append(order, r.Platform)
		}
		a.count++
		a.sum += r.RiskScore
	}

	stats := make([]PlatformStat, 0, len(order))
	for _, p := range order {
		a := byPlatform[p]
		stats = append(stats, PlatformStat{
			Platform:     p,
			Count:        a.count,
			AverageScore: float64(a.sum) / float64(a.count),
		})
	}
	return stats, nil
}

func (s *MemoryStore) ListWithIndicators(_ context.Context, since time.Time) ([]*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Result
	for _, r := range s.results {
		if !r.Timestamp.After(since) {
			continue
		}
		if len(r.NetworkAnalysis.Indicators) == 0 {
			continue
		}
		out = append(out, copyResult(r))
	}
	return out, nil
}

// beforeCursor reports whether r sorts strictly after the cursor position
// in the newest-first ordering (timestamp desc, id desc).
func beforeCursor(r *Result, createdAt time.Time, id string) bool {
	if r.Timestamp.Before(createdAt) {
		return true
	}
	return r.Timestamp.Equal(createdAt) && r.ID < id
}

// copyResult deep-copies a result so callers cannot mutate store state.
func copyResult(r *Result) *Result {
	c := *r
	c.Flags = copyStrings(r.Flags)
	c.Explanation = copyStrings(r.Explanation)
	c.Sentiment.Positive = copyStrings(r.Sentiment.Positive)
	c.Sentiment.Negative = copyStrings(r.Sentiment.Negative)
	c.NetworkAnalysis.Indicators = copyStrings(r.NetworkAnalysis.Indicators)
	return &c
}

// copyStrings copies a slice, keeping empty distinct from nil so saved
// results serialize the same way they were created.
func copyStrings(src []string) []string {
	if src == nil {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
