package activity

import (
	"context"
	"sync"
)

// MemoryStore keeps activity profiles in process memory. Used when no
// database is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*profileState
}

type profileState struct {
	posts          []Post
	totalRiskScore int
	flaggedPosts   int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*profileState)}
}

func (m *MemoryStore) Profile(ctx context.Context, userID string, limit int) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}

	start := 0
	if limit > 0 && len(st.posts) > limit {
		start = len(st.posts) - limit
	}
	posts := make([]Post, len(st.posts)-start)
	copy(posts, st.posts[start:])

	return &Profile{
		UserID:    userID,
		PostCount: len(st.posts),
		Posts:     posts,
		RiskProfile: RiskProfile{
			TotalRiskScore: st.totalRiskScore,
			FlaggedPosts:   st.flaggedPosts,
		},
	}, nil
}

func (m *MemoryStore) AppendPost(ctx context.Context, userID string, post Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state(userID).posts = append(m.state(userID).posts, post)
	return nil
}

func (m *MemoryStore) IncrementRiskProfile(ctx context.Context, userID string, scoreDelta, flaggedDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(userID)
	st.totalRiskScore += scoreDelta
	st.flaggedPosts += flaggedDelta
	return nil
}

// state returns the user's entry, creating it if absent. Callers must
// hold the write lock.
func (m *MemoryStore) state(userID string) *profileState {
	st, ok := m.profiles[userID]
	if !ok {
		st = &profileState{}
		m.profiles[userID] = st
	}
	return st
}
