// Package activity tracks per-author posting behavior.
//
// Every scored analysis for a known author appends the post to the
// author's profile and bumps a pair of running risk counters. The
// profile feeds two consumers: the bot-behavior check reads the recent
// posts, and the activity endpoint exposes the full profile for
// moderator review.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/sift/internal/syncutil"
)

var ErrProfileNotFound = errors.New("activity: profile not found")

// Post is one recorded piece of content by an author.
type Post struct {
	Content   string    `json:"content"`
	Platform  string    `json:"platform"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskProfile holds the author's running counters. Both are monotonic
// increments; lost updates under concurrent writers for the same author
// are tolerated rather than corrected.
type RiskProfile struct {
	TotalRiskScore int `json:"totalRiskScore"`
	FlaggedPosts   int `json:"flaggedPosts"`
}

// Profile is an author's activity record. Posts holds the most recent
// entries in chronological order; PostCount is the total ever recorded.
type Profile struct {
	UserID      string      `json:"userId"`
	PostCount   int         `json:"postCount"`
	Posts       []Post      `json:"posts"`
	RiskProfile RiskProfile `json:"riskProfile"`
}

// Store persists activity profiles.
type Store interface {
	// Profile returns the counters plus the most recent limit posts in
	// chronological order. Returns ErrProfileNotFound when nothing has
	// been recorded for the user.
	Profile(ctx context.Context, userID string, limit int) (*Profile, error)

	// AppendPost records one post for the user.
	AppendPost(ctx context.Context, userID string, post Post) error

	// IncrementRiskProfile adds the deltas to the user's counters,
	// creating the profile row if needed. Must be atomic per call.
	IncrementRiskProfile(ctx context.Context, userID string, scoreDelta, flaggedDelta int) error
}

const defaultHistoryLimit = 500

// Service provides activity operations over a Store. Writes for the
// same user are serialized through a sharded lock so a profile's post
// order matches the order calls completed in.
type Service struct {
	store        Store
	historyLimit int
	locks        syncutil.ShardedMutex
}

// NewService creates an activity service.
func NewService(store Store) *Service {
	return &Service{store: store, historyLimit: defaultHistoryLimit}
}

// WithHistoryLimit overrides how many recent posts History returns.
func (s *Service) WithHistoryLimit(n int) *Service {
	if n > 0 {
		s.historyLimit = n
	}
	return s
}

// RecordPost appends the post and bumps the author's risk counters.
// The two writes are not transactional: a crash between them loses the
// counter update, which the profile semantics tolerate.
func (s *Service) RecordPost(ctx context.Context, userID string, post Post, riskScore int, flagged bool) error {
	if userID == "" {
		return nil
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	if post.Timestamp.IsZero() {
		post.Timestamp = time.Now().UTC()
	}
	if post.Platform == "" {
		post.Platform = "unknown"
	}

	if err := s.store.AppendPost(ctx, userID, post); err != nil {
		return fmt.Errorf("append post: %w", err)
	}

	flaggedDelta := 0
	if flagged {
		flaggedDelta = 1
	}
	if err := s.store.IncrementRiskProfile(ctx, userID, riskScore, flaggedDelta); err != nil {
		return fmt.Errorf("update risk profile: %w", err)
	}
	return nil
}

// History returns the author's recent posts for the bot-behavior check.
// A user with no recorded activity yields (nil, nil), not an error.
func (s *Service) History(ctx context.Context, userID string) ([]Post, error) {
	p, err := s.store.Profile(ctx, userID, s.historyLimit)
	if errors.Is(err, ErrProfileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return p.Posts, nil
}

// Profile returns the stored profile with up to limit recent posts.
func (s *Service) Profile(ctx context.Context, userID string, limit int) (*Profile, error) {
	return s.store.Profile(ctx, userID, limit)
}
