// Package dashboard aggregates persisted analyses into moderator views.
//
// Everything here is read-side: the service issues window queries against
// the analysis store and shapes the rows into summary and actor reports.
// It never writes, so it is safe to run concurrently with scoring.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mbd888/sift/internal/analysis"
)

// Windows accepted by Summary.
const (
	Timeframe1h  = "1h"
	Timeframe24h = "24h"
	Timeframe7d  = "7d"

	DefaultTimeframe = Timeframe24h
)

const (
	recentLimit = 10
	actorLimit  = 20
	actorWindow = 24 * time.Hour
)

// RecentAnalysis is the compact record shown in the summary feed.
type RecentAnalysis struct {
	ID        string             `json:"id"`
	Content   string             `json:"content"`
	RiskLevel analysis.RiskLevel `json:"riskLevel"`
	RiskScore int                `json:"riskScore"`
	Flags     []string           `json:"flags"`
	Timestamp time.Time          `json:"timestamp"`
	Platform  string             `json:"platform"`
}

// LevelBreakdown pairs a tier's count with its share of the window total.
type LevelBreakdown struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Summary is the aggregate view over one time window.
type Summary struct {
	Timeframe     string                                `json:"timeframe"`
	Platform      string                                `json:"platform,omitempty"`
	TotalAnalyses int                                   `json:"totalAnalyses"`
	RiskLevels    map[analysis.RiskLevel]LevelBreakdown `json:"riskLevels"`
	Recent        []RecentAnalysis                      `json:"recentAnalyses"`
	Platforms     []analysis.PlatformStat               `json:"platformBreakdown"`
	GeneratedAt   time.Time                             `json:"generatedAt"`
}

// Actor is one suspected coordinated account, aggregated from its
// network-flagged analyses.
type Actor struct {
	UserID         string   `json:"userId"`
	Posts          []string `json:"posts"`
	TotalRiskScore int      `json:"totalRiskScore"`
	Indicators     []string `json:"indicators"`
}

// Service computes aggregates over the analysis store.
type Service struct {
	store analysis.Store
}

func NewService(store analysis.Store) *Service {
	return &Service{store: store}
}

// Summary builds the aggregate view for the given timeframe and optional
// platform filter. An empty timeframe defaults to 24h; validation of
// unsupported values happens at the HTTP boundary.
func (s *Service) Summary(ctx context.Context, timeframe, platform string) (*Summary, error) {
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}
	since := time.Now().UTC().Add(-windowDuration(timeframe))

	counts, err := s.store.CountByLevel(ctx, since, platform)
	if err != nil {
		return nil, fmt.Errorf("count by level: %w", err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	// All four tiers are reported even when empty.
	levels := make(map[analysis.RiskLevel]LevelBreakdown, 4)
	for _, lvl := range []analysis.RiskLevel{
		analysis.LevelHigh, analysis.LevelMedium, analysis.LevelLow, analysis.LevelMinimal,
	} {
		levels[lvl] = LevelBreakdown{
			Count:      counts[lvl],
			Percentage: percentage(counts[lvl], total),
		}
	}

	recent, err := s.store.Recent(ctx, since, platform, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent analyses: %w", err)
	}
	feed := make([]RecentAnalysis, len(recent))
	for i, r := range recent {
		feed[i] = RecentAnalysis{
			ID:        r.ID,
			Content:   r.Content,
			RiskLevel: r.RiskLevel,
			RiskScore: r.RiskScore,
			Flags:     r.Flags,
			Timestamp: r.Timestamp,
			Platform:  r.Platform,
		}
	}

	stats, err := s.store.PlatformStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("platform stats: %w", err)
	}
	platforms := make([]analysis.PlatformStat, 0, len(stats))
	for _, st := range stats {
		if platform == "" || st.Platform == platform {
			platforms = append(platforms, st)
		}
	}

	return &Summary{
		Timeframe:     timeframe,
		Platform:      platform,
		TotalAnalyses: total,
		RiskLevels:    levels,
		Recent:        feed,
		Platforms:     platforms,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// SuspiciousActors groups the last 24 hours of network-flagged analyses
// by author, sums their risk, and returns the top offenders.
func (s *Service) SuspiciousActors(ctx context.Context) ([]Actor, error) {
	since := time.Now().UTC().Add(-actorWindow)

	results, err := s.store.ListWithIndicators(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list network-flagged analyses: %w", err)
	}

	byUser := make(map[string]*Actor)
	var order []string
	for _, r := range results {
		if r.UserID == "" {
			continue
		}
		a, ok := byUser[r.UserID]
		if !ok {
			a = &Actor{UserID: r.UserID}
			byUser[r.UserID] = a
			order = append(order, r.UserID)
		}
		a.Posts = append(a.Posts, r.Content)
		a.TotalRiskScore += r.RiskScore
		for _, ind := range r.NetworkAnalysis.Indicators {
			if !containsString(a.Indicators, ind) {
				a.Indicators = append(a.Indicators, ind)
			}
		}
	}

	actors := make([]Actor, 0, len(order))
	for _, id := range order {
		actors = append(actors, *byUser[id])
	}
	sort.SliceStable(actors, func(i, j int) bool {
		return actors[i].TotalRiskScore > actors[j].TotalRiskScore
	})
	if len(actors) > actorLimit {
		actors = actors[:actorLimit]
	}
	return actors, nil
}

func windowDuration(timeframe string) time.Duration {
	switch timeframe {
	case Timeframe1h:
		return time.Hour
	case Timeframe7d:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// percentage reports part's share of total to one decimal place. A zero
// total yields 0, never NaN.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
