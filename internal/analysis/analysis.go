// Package analysis implements content risk scoring.
//
// Every submission is evaluated against an ordered list of independent
// heuristic rules: keyword matching, a small bag-of-words classifier,
// lexicon sentiment, a bot-behavior check over the author's post history,
// hashtag matching, and two coordination checks over network metadata.
// Points from fired rules sum into a single risk score, which is bucketed
// into four tiers. The score is the exact sum of fired-rule points; the
// tier is a pure function of the score.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/sift/internal/pagination"
)

// Errors returned by the engine and stores.
var (
	ErrNotFound       = errors.New("analysis: result not found")
	ErrAnalysisFailed = errors.New("analysis: analysis failed")
)

// RiskLevel is the tier assigned to a numeric risk score.
type RiskLevel string

const (
	LevelMinimal RiskLevel = "MINIMAL"
	LevelLow     RiskLevel = "LOW"
	LevelMedium  RiskLevel = "MEDIUM"
	LevelHigh    RiskLevel = "HIGH"
)

// Tier thresholds. Boundaries are inclusive on the lower end: a score of
// exactly 80 is HIGH, 79 is MEDIUM.
const (
	ThresholdHigh   = 80
	ThresholdMedium = 50
	ThresholdLow    = 25
)

// RiskLevelForScore maps a summed score to its tier.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= ThresholdHigh:
		return LevelHigh
	case score >= ThresholdMedium:
		return LevelMedium
	case score >= ThresholdLow:
		return LevelLow
	default:
		return LevelMinimal
	}
}

// ValidLevel reports whether s is one of the four risk tiers.
func ValidLevel(s string) bool {
	switch RiskLevel(s) {
	case LevelMinimal, LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

// Metadata is the optional context submitted alongside content.
type Metadata struct {
	Platform string       `json:"platform,omitempty"`
	UserID   string       `json:"userId,omitempty"`
	Hashtags []string     `json:"hashtags,omitempty"`
	Network  *NetworkData `json:"networkData,omitempty"`
}

// NetworkData carries client-observed coordination signals. It is either
// submitted with the request or produced by an injected NetworkSource;
// when absent, the network-pattern rules are skipped.
type NetworkData struct {
	SimultaneousPosts int           `json:"simultaneousPosts"`
	SharedContent     SharedContent `json:"sharedContent"`
}

// SharedContent measures what fraction of surrounding post volume
// duplicates known suspicious content.
type SharedContent struct {
	SuspiciousPercentage float64 `json:"suspiciousPercentage"`
}

// Sentiment is the lexicon scorer output. Score is the raw sum of matched
// token polarities; Comparative is Score normalized by token count (0 when
// the content has no tokens).
type Sentiment struct {
	Score       int      `json:"score"`
	Comparative float64  `json:"comparative"`
	Positive    []string `json:"positive"`
	Negative    []string `json:"negative"`
}

// NetworkAnalysis accumulates the network-pattern sub-scores. Indicators
// records which coordination checks fired, in evaluation order.
type NetworkAnalysis struct {
	Score      int      `json:"score"`
	Indicators []string `json:"indicators"`
}

// Result is a persisted scoring outcome. Immutable once saved except for
// Resolved, which the moderation workflow toggles.
type Result struct {
	ID              string          `json:"id"`
	Content         string          `json:"content"`
	Platform        string          `json:"platform"`
	UserID          string          `json:"userId,omitempty"`
	RiskScore       int             `json:"riskScore"`
	RiskLevel       RiskLevel       `json:"riskLevel"`
	Flags           []string        `json:"flags"`
	Sentiment       Sentiment       `json:"sentiment"`
	NetworkAnalysis NetworkAnalysis `json:"networkAnalysis"`
	Explanation     []string        `json:"explanation"`
	Resolved        bool            `json:"resolved"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Flagged reports whether any rule fired, counting network indicators.
func (r *Result) Flagged() bool {
	return len(r.Flags) > 0 || len(r.NetworkAnalysis.Indicators) > 0
}

// PlatformStat is a per-platform aggregate over a time window.
type PlatformStat struct {
	Platform     string  `json:"platform"`
	Count        int     `json:"count"`
	AverageScore float64 `json:"averageRiskScore"`
}

// ListOption configures optional parameters for list queries.
type ListOption func(*listOpts)

type listOpts struct {
	cursor   *pagination.Cursor
	platform string
	level    RiskLevel
}

func applyListOpts(opts []ListOption) listOpts {
	var o listOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithCursor filters results to items after the given cursor position.
func WithCursor(cursor string) ListOption {
	return func(o *listOpts) {
		c, err := pagination.Decode(cursor)
		if err == nil {
			o.cursor = c
		}
	}
}

// WithPlatform filters results to a single platform.
func WithPlatform(platform string) ListOption {
	return func(o *listOpts) { o.platform = platform }
}

// WithLevel filters results to a single risk tier.
func WithLevel(level RiskLevel) ListOption {
	return func(o *listOpts) { o.level = level }
}

// Store persists scoring results and serves the aggregation queries the
// dashboard reads. Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, result *Result) error
	Get(ctx context.Context, id string) (*Result, error)
	SetResolved(ctx context.Context, id string, resolved bool) error

	// List returns up to limit results newest first, filtered by the options.
	List(ctx context.Context, limit int, opts ...ListOption) ([]*Result, error)

	// Recent returns up to limit results since the given time, newest first,
	// optionally filtered by platform ("" means all).
	Recent(ctx context.Context, since time.Time, platform string, limit int) ([]*Result, error)

	// CountByLevel returns per-tier counts for results since the given time.
	CountByLevel(ctx context.Context, since time.Time, platform string) (map[RiskLevel]int, error)

	// PlatformStats returns per-platform count and mean score since the given time.
	PlatformStats(ctx context.Context, since time.Time) ([]PlatformStat, error)

	// ListWithIndicators returns results since the given time whose
	// network analysis recorded at least one indicator, oldest first.
	ListWithIndicators(ctx context.Context, since time.Time) ([]*Result, error)
}
