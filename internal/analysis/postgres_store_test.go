//go:build integration

package analysis

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/mbd888/sift/internal/pagination"
	"github.com/mbd888/sift/internal/testutil"
)

func setupPGStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)

	store := NewPostgresStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		cleanup()
		t.Fatalf("Migrate failed: %v", err)
	}
	return store, cleanup
}

func pgResult(id, platform string, score int, ts time.Time) *Result {
	r := testResult(id, platform, score, ts.Truncate(time.Microsecond).UTC())
	return r
}

func TestPostgresStoreSaveGetRoundTrip(t *testing.T) {
	store, cleanup := setupPGStore(t)
	defer cleanup()
	ctx := context.Background()

	orig := pgResult("an_rt1", "twitter", 95, time.Now())
	orig.UserID = "user-1"
	orig.Flags = []string{FlagKeywords, FlagClassifier, FlagSentiment}
	orig.Sentiment = Sentiment{
		Score:       -3,
		Comparative: -0.6,
		Positive:    []string{},
		Negative:    []string{"destroy"},
	}
	orig.NetworkAnalysis = NetworkAnalysis{Score: 0, Indicators: []string{}}
	orig.Explanation = []string{"content matched 1 suspicious keyword pattern(s)"}

	if err := store.Save(ctx, orig); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "an_rt1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(orig, got) {
		t.Errorf("round trip mismatch:\nsaved %+v\ngot   %+v", orig, got)
	}
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	store, cleanup := setupPGStore(t)
	defer cleanup()

	if _, err := store.Get(context.Background(), "an_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreSetResolved(t *testing.T) {
	store, cleanup := setupPGStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Save(ctx, pgResult("an_1", "twitter", 80, time.Now())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.SetResolved(ctx, "an_1", true); err != nil {
		t.Fatalf("SetResolved failed: %v", err)
	}
	got, err := store.Get(ctx, "an_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Resolved {
		t.Error("expected resolved=true")
	}

	if err := store.SetResolved(ctx, "an_missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreListFiltersAndPagination(t *testing.T) {
	store, cleanup := setupPGStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Microsecond).UTC()
	for i := 0; i < 5; i++ {
		platform := "twitter"
		score := 85
		if i%2 == 1 {
			platform = "facebook"
			score = 30
		}
		r := pgResult(fmt.Sprintf("an_%d", i), platform, score, base.Add(time.Duration(i)*time.Minute))
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	all, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 5 || all[0].ID != "an_4" || all[4].ID != "an_0" {
		t.Fatalf("expected 5 results newest first, got %v", ids(all))
	}

	twitter, err := store.List(ctx, 10, WithPlatform("twitter"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(twitter) != 3 {
		t.Errorf("expected 3 twitter results, got %v", ids(twitter))
	}

	high, err := store.List(ctx, 10, WithLevel(LevelHigh))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(high) != 3 {
		t.Errorf("expected 3 HIGH results, got %v", ids(high))
	}

	// Cursor pages must not overlap.
	first, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	cursor := pagination.Encode(first[1].Timestamp, first[1].ID)
	second, err := store.List(ctx, 2, WithCursor(cursor))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(second) != 2 || second[0].ID != "an_2" || second[1].ID != "an_1" {
		t.Errorf("unexpected second page %v", ids(second))
	}
}

func TestPostgresStoreRecentAndAggregates(t *testing.T) {
	store, cleanup := setupPGStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().Truncate(time.Microsecond).UTC()

	seed := []*Result{
		pgResult("an_old", "twitter", 85, now.Add(-72*time.Hour)),
		pgResult("an_1", "twitter", 80, now.Add(-2*time.Hour)),
		pgResult("an_2", "twitter", 40, now.Add(-90*time.Minute)),
		pgResult("an_3", "facebook", 10, now.Add(-time.Hour)),
	}
	for _, r := range seed {
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save %s failed: %v", r.ID, err)
		}
	}
	since := now.Add(-24 * time.Hour)

	recent, err := store.Recent(ctx, since, "", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != "an_3" {
		t.Errorf("unexpected recent results %v", ids(recent))
	}

	twitter, err := store.Recent(ctx, since, "twitter", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(twitter) != 2 {
		t.Errorf("expected 2 twitter results, got %v", ids(twitter))
	}

	counts, err := store.CountByLevel(ctx, since, "")
	if err != nil {
		t.Fatalf("CountByLevel failed: %v", err)
	}
	if counts[LevelHigh] != 1 || counts[LevelLow] != 1 || counts[LevelMinimal] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}

	stats, err := store.PlatformStats(ctx, since)
	if err != nil {
		t.Fatalf("PlatformStats failed: %v", err)
	}
	byPlatform := map[string]PlatformStat{}
	for _, st := range stats {
		byPlatform[st.Platform] = st
	}
	if st := byPlatform["twitter"]; st.Count != 2 || st.AverageScore != 60 {
		t.Errorf("unexpected twitter stats %+v", st)
	}
	if st := byPlatform["facebook"]; st.Count != 1 || st.AverageScore != 10 {
		t.Errorf("unexpected facebook stats %+v", st)
	}
}

func TestPostgresStoreListWithIndicators(t *testing.T) {
	store, cleanup := setupPGStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now().Truncate(time.Microsecond).UTC()

	flagged1 := pgResult("an_1", "twitter", 45, now.Add(-2*time.Hour))
	flagged1.UserID = "user-1"
	flagged1.NetworkAnalysis = NetworkAnalysis{Score: 45, Indicators: []string{FlagSync, FlagCoord}}

	plain := pgResult("an_2", "twitter", 40, now.Add(-90*time.Minute))

	flagged2 := pgResult("an_3", "twitter", 20, now.Add(-time.Hour))
	flagged2.UserID = "user-2"
	flagged2.NetworkAnalysis = NetworkAnalysis{Score: 20, Indicators: []string{FlagSync}}

	for _, r := range []*Result{flagged1, plain, flagged2} {
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save %s failed: %v", r.ID, err)
		}
	}

	results, err := store.ListWithIndicators(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListWithIndicators failed: %v", err)
	}
	if len(results) != 2 || results[0].ID != "an_1" || results[1].ID != "an_3" {
		t.Errorf("unexpected results %v", ids(results))
	}
	if results[0].UserID != "user-1" {
		t.Errorf("expected user-1, got %s", results[0].UserID)
	}
}

func ids(results []*Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
