package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/sift/internal/circuitbreaker"
	"github.com/mbd888/sift/internal/idgen"
	"github.com/mbd888/sift/internal/logging"
	"github.com/mbd888/sift/internal/traces"
)

// HistorySource supplies an author's recent posts for the bot rule.
// Implementations return (nil, nil) when the author has no history yet;
// a non-nil error marks the backend as degraded.
type HistorySource interface {
	History(ctx context.Context, userID string) (*UserHistory, error)
}

// NetworkSource supplies network coordination data for requests that
// carry none. Optional; production runs without one unless the simulator
// is enabled.
type NetworkSource interface {
	Sample() *NetworkData
}

// ActivitySink receives the best-effort per-author profile update that
// follows every scored analysis for a known author.
type ActivitySink interface {
	RecordAnalysis(ctx context.Context, userID string, res *Result) error
}

// Engine scores content against the configured rule list and persists
// every result. Construction trains the classifier; the engine is
// read-only afterwards and safe for concurrent use.
type Engine struct {
	cfg      Config
	rules    []Rule
	store    Store
	history  HistorySource
	network  NetworkSource
	activity ActivitySink
	breaker  *circuitbreaker.Breaker
}

// NewEngine creates a scoring engine backed by the given result store.
func NewEngine(cfg Config, store Store) *Engine {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 2 * time.Second
	}
	return &Engine{
		cfg:     cfg,
		rules:   defaultRules(cfg, trainClassifier(cfg.Training)),
		store:   store,
		breaker: circuitbreaker.New("activity_history", 5, 30*time.Second),
	}
}

// WithHistory wires the post-history backend for the bot rule.
func (e *Engine) WithHistory(src HistorySource) *Engine {
	e.history = src
	return e
}

// WithNetwork wires an optional network data source.
func (e *Engine) WithNetwork(src NetworkSource) *Engine {
	e.network = src
	return e
}

// WithActivity wires the per-author profile updates.
func (e *Engine) WithActivity(sink ActivitySink) *Engine {
	e.activity = sink
	return e
}

// Score evaluates content against every rule in order and persists the
// result. The caller validates content before this point; the engine
// assumes it is non-empty.
//
// Errors wrapping ErrAnalysisFailed mean a sub-check failed internally.
// Any other error is a storage failure. Either way no partial result is
// returned or persisted.
func (e *Engine) Score(ctx context.Context, content string, meta Metadata) (res *Result, err error) {
	ctx, span := traces.StartSpan(ctx, "analysis.score", traces.Platform(meta.Platform))
	defer span.End()

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("scoring panic", "panic", r)
			res, err = nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, r)
		}
	}()

	if meta.Platform == "" {
		meta.Platform = "unknown"
	}

	sent := analyzeSentiment(content)
	in := &Input{
		Content:   content,
		Lowered:   strings.ToLower(content),
		Metadata:  meta,
		Sentiment: &sent,
		Network:   meta.Network,
	}

	if meta.UserID != "" && e.history != nil {
		in.History = e.lookupHistory(ctx, meta.UserID)
	}
	if in.Network == nil && e.network != nil {
		in.Network = e.network.Sample()
	}

	result := &Result{
		ID:              idgen.WithPrefix("an_"),
		Content:         content,
		Platform:        meta.Platform,
		UserID:          meta.UserID,
		Flags:           []string{},
		Sentiment:       sent,
		NetworkAnalysis: NetworkAnalysis{Indicators: []string{}},
		Explanation:     []string{},
		Timestamp:       time.Now().UTC(),
	}

	for _, rule := range e.rules {
		f := rule.Evaluate(ctx, in)
		if f == nil {
			continue
		}
		result.RiskScore += f.Points
		result.Explanation = append(result.Explanation, f.Explanation)
		if f.Network {
			result.NetworkAnalysis.Score += f.Points
			result.NetworkAnalysis.Indicators = append(result.NetworkAnalysis.Indicators, f.Flag)
		} else {
			result.Flags = append(result.Flags, f.Flag)
		}
		RuleHitsTotal.WithLabelValues(f.Flag).Inc()
	}
	result.RiskLevel = RiskLevelForScore(result.RiskScore)

	span.SetAttributes(
		traces.AnalysisID(result.ID),
		traces.RiskScore(result.RiskScore),
		traces.RiskLevel(string(result.RiskLevel)),
	)

	if err := e.store.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}

	observeAnalysis(string(result.RiskLevel), start)

	if meta.UserID != "" && e.activity != nil {
		go e.recordActivity(meta.UserID, result)
	}

	return result, nil
}

// lookupHistory fetches the author's post history with a bounded timeout
// behind a circuit breaker. Every failure degrades to "no bot signal";
// scoring never fails because the activity backend is down.
func (e *Engine) lookupHistory(ctx context.Context, userID string) *UserHistory {
	if !e.breaker.Allow() {
		logging.L(ctx).Warn("history lookup skipped, circuit open", "user_id", userID)
		LookupDegradationsTotal.Inc()
		return nil
	}

	lctx, cancel := context.WithTimeout(ctx, e.cfg.LookupTimeout)
	defer cancel()

	hist, err := e.history.History(lctx, userID)
	if err != nil {
		e.breaker.RecordFailure()
		logging.L(ctx).Warn("history lookup degraded", "user_id", userID, "error", err)
		LookupDegradationsTotal.Inc()
		return nil
	}
	e.breaker.RecordSuccess()
	return hist
}

// recordActivity applies the post-scoring profile update: append the post
// and bump the author's risk counters. Best-effort; failures are logged
// and lost updates under concurrent writers are tolerated.
func (e *Engine) recordActivity(userID string, res *Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.activity.RecordAnalysis(ctx, userID, res); err != nil {
		logging.L(ctx).Warn("activity update failed", "user_id", userID, "error", err)
	}
}
