// Package client implements a Go SDK for the sift moderation API.
// It mirrors the wire types of the HTTP surface so importers do not
// depend on sift internals.
package client

import (
	"errors"
	"fmt"
	"time"
)

// AnalyzeRequest is the content submission for scoring.
type AnalyzeRequest struct {
	Content  string       `json:"content"`
	Platform string       `json:"platform,omitempty"`
	UserID   string       `json:"userId,omitempty"`
	Hashtags []string     `json:"hashtags,omitempty"`
	Network  *NetworkData `json:"networkData,omitempty"`
}

// NetworkData carries client-observed coordination signals.
type NetworkData struct {
	SimultaneousPosts int           `json:"simultaneousPosts"`
	SharedContent     SharedContent `json:"sharedContent"`
}

// SharedContent measures what fraction of surrounding post volume
// duplicates known suspicious content.
type SharedContent struct {
	SuspiciousPercentage float64 `json:"suspiciousPercentage"`
}

// Sentiment is the lexicon scorer output.
type Sentiment struct {
	Score       int      `json:"score"`
	Comparative float64  `json:"comparative"`
	Positive    []string `json:"positive"`
	Negative    []string `json:"negative"`
}

// NetworkAnalysis holds the network-pattern sub-score and the
// coordination checks that fired.
type NetworkAnalysis struct {
	Score      int      `json:"score"`
	Indicators []string `json:"indicators"`
}

// Analysis is a scoring outcome. RiskLevel is one of MINIMAL, LOW,
// MEDIUM, or HIGH.
type Analysis struct {
	ID              string          `json:"id"`
	Content         string          `json:"content"`
	Platform        string          `json:"platform"`
	UserID          string          `json:"userId,omitempty"`
	RiskScore       int             `json:"riskScore"`
	RiskLevel       string          `json:"riskLevel"`
	Flags           []string        `json:"flags"`
	Sentiment       Sentiment       `json:"sentiment"`
	NetworkAnalysis NetworkAnalysis `json:"networkAnalysis"`
	Explanation     []string        `json:"explanation"`
	Resolved        bool            `json:"resolved"`
	Timestamp       time.Time       `json:"timestamp"`
}

// AnalysisPage is one page of stored analyses. Pass NextCursor as the
// cursor of the next ListAnalyses call to continue.
type AnalysisPage struct {
	Analyses   []Analysis `json:"analyses"`
	Count      int        `json:"count"`
	NextCursor string     `json:"nextCursor"`
	HasMore    bool       `json:"hasMore"`
}

// ListOptions filters a ListAnalyses call. Zero values mean no filter.
type ListOptions struct {
	Platform string
	Level    string
	Cursor   string
	Limit    int
}

// LevelBreakdown is the count and share of one risk tier.
type LevelBreakdown struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// RecentAnalysis is the trimmed form of an analysis shown on the dashboard.
type RecentAnalysis struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	RiskLevel string    `json:"riskLevel"`
	RiskScore int       `json:"riskScore"`
	Flags     []string  `json:"flags"`
	Timestamp time.Time `json:"timestamp"`
	Platform  string    `json:"platform"`
}

// PlatformStat is a per-platform aggregate over the dashboard window.
type PlatformStat struct {
	Platform         string  `json:"platform"`
	Count            int     `json:"count"`
	AverageRiskScore float64 `json:"averageRiskScore"`
}

// Dashboard summarizes moderation activity for a timeframe.
type Dashboard struct {
	Timeframe     string                    `json:"timeframe"`
	Platform      string                    `json:"platform,omitempty"`
	TotalAnalyses int                       `json:"totalAnalyses"`
	RiskLevels    map[string]LevelBreakdown `json:"riskLevels"`
	Recent        []RecentAnalysis          `json:"recentAnalyses"`
	Platforms     []PlatformStat            `json:"platformBreakdown"`
	GeneratedAt   time.Time                 `json:"generatedAt"`
}

// Actor is a user whose recent posts show coordination indicators.
// Posts holds the flagged post contents, summed into TotalRiskScore.
type Actor struct {
	UserID         string   `json:"userId"`
	Posts          []string `json:"posts"`
	TotalRiskScore int      `json:"totalRiskScore"`
	Indicators     []string `json:"indicators"`
}

// Post is one item of a user's recorded history.
type Post struct {
	Content   string    `json:"content"`
	Platform  string    `json:"platform"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskProfile aggregates risk over a user's recorded posts.
type RiskProfile struct {
	TotalRiskScore int `json:"totalRiskScore"`
	FlaggedPosts   int `json:"flaggedPosts"`
}

// Activity is a user's post history with its aggregated risk profile.
// PostCount is the total ever recorded; Posts holds the most recent
// entries in chronological order.
type Activity struct {
	UserID      string      `json:"userId"`
	PostCount   int         `json:"postCount"`
	Posts       []Post      `json:"posts"`
	RiskProfile RiskProfile `json:"riskProfile"`
}

// APIError is an error response from the API. Code is the machine-readable
// error code ("not_found", "validation_failed", ...); it is empty when the
// server returned a non-JSON body.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("sift: unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sift: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an API error for a missing resource.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
