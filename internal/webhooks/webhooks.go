// Package webhooks delivers detection events to external services.
//
// Consumers register an endpoint URL plus an event filter and receive
// signed JSON payloads when content is flagged. Deliveries run
// asynchronously with retry and exponential backoff; endpoints that
// fail too many times in a row are disabled automatically.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/sift/internal/analysis"
	"github.com/mbd888/sift/internal/idgen"
	"github.com/mbd888/sift/internal/metrics"
	"github.com/mbd888/sift/internal/retry"
	"github.com/mbd888/sift/internal/security"
)

// EventType represents the type of webhook event
type EventType string

const (
	// EventAnalysisFlagged fires for every analysis where at least one rule matched.
	EventAnalysisFlagged EventType = "analysis.flagged"
	// EventAnalysisHighRisk fires when a flagged analysis lands in the HIGH tier.
	EventAnalysisHighRisk EventType = "analysis.high_risk"
	// EventActorSuspicious fires when an identified author shows coordination signals.
	EventActorSuspicious EventType = "actor.suspicious"
	// EventWebhookTest is sent by the test-delivery endpoint. Subscriptions
	// cannot register for it; it always goes to the targeted endpoint.
	EventWebhookTest EventType = "webhook.test"
)

// KnownEventTypes lists every event type a subscription may register for.
var KnownEventTypes = []EventType{
	EventAnalysisFlagged,
	EventAnalysisHighRisk,
	EventActorSuspicious,
}

// ValidEventType reports whether t names a subscribable event.
func ValidEventType(t EventType) bool {
	for _, known := range KnownEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when a subscription ID does not exist.
var ErrNotFound = errors.New("webhooks: subscription not found")

// Event represents a webhook event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription represents a webhook subscription
type Subscription struct {
	ID                  string      `json:"id"`
	URL                 string      `json:"url"`
	Secret              string      `json:"-"` // Used for HMAC signing
	Events              []EventType `json:"events"`
	Platforms           []string    `json:"platforms,omitempty"` // Empty means all platforms
	MinLevel            string      `json:"minLevel,omitempty"`  // Lowest risk tier to deliver
	Active              bool        `json:"active"`
	CreatedAt           time.Time   `json:"createdAt"`
	LastSuccess         *time.Time  `json:"lastSuccess,omitempty"`
	LastError           string      `json:"lastError,omitempty"`
	ConsecutiveFailures int         `json:"consecutiveFailures,omitempty"`
}

// matches reports whether the subscription's platform and tier filters
// accept a detection.
func (s *Subscription) matches(platform string, level analysis.RiskLevel) bool {
	if len(s.Platforms) > 0 {
		found := false
		for _, p := range s.Platforms {
			if p == platform {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.MinLevel != "" && levelRank(level) < levelRank(analysis.RiskLevel(s.MinLevel)) {
		return false
	}
	return true
}

func levelRank(level analysis.RiskLevel) int {
	switch level {
	case analysis.LevelHigh:
		return 3
	case analysis.LevelMedium:
		return 2
	case analysis.LevelLow:
		return 1
	default:
		return 0
	}
}

// detectionEventTypes lists the event types a scored result produces.
// Unflagged results produce nothing.
func detectionEventTypes(res *analysis.Result) []EventType {
	if res == nil || !res.Flagged() {
		return nil
	}
	types := []EventType{EventAnalysisFlagged}
	if res.RiskLevel == analysis.LevelHigh {
		types = append(types, EventAnalysisHighRisk)
	}
	if res.UserID != "" && len(res.NetworkAnalysis.Indicators) > 0 {
		types = append(types, EventActorSuspicious)
	}
	return types
}

// Store persists webhook subscriptions
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// RetryConfig tunes delivery retries and endpoint health tracking.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxFailures int // Consecutive failures before a subscription is disabled
}

// DefaultRetryConfig returns the delivery policy used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxFailures: 10,
	}
}

const (
	// deliveryWindow bounds a single delivery including all retries.
	deliveryWindow = time.Minute
	// statusUpdateTimeout bounds the store write after a delivery settles.
	statusUpdateTimeout = 5 * time.Second
)

// Dispatcher sends webhook events
type Dispatcher struct {
	store  Store
	client *http.Client
	retry  RetryConfig

	// urlValidator guards against SSRF at delivery time. Tests override
	// it to allow loopback endpoints.
	urlValidator func(string) error
}

// NewDispatcher creates a dispatcher with the default retry policy.
func NewDispatcher(store Store) *Dispatcher {
	return NewDispatcherWithRetry(store, DefaultRetryConfig())
}

// NewDispatcherWithRetry creates a dispatcher with a custom retry policy.
func NewDispatcherWithRetry(store Store, cfg RetryConfig) *Dispatcher {
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry:        cfg,
		urlValidator: security.ValidateEndpointURL,
	}
}

// Dispatch sends an event to all active subscribers of its type.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	subs, err := d.store.GetByEvent(ctx, event.Type)
	if err != nil {
		return fmt.Errorf("failed to get subscribers: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}

		// Send async to avoid blocking
		go d.send(sub, event)
	}

	return nil
}

// DispatchDetection fans a scored analysis out to every subscription
// whose event, platform, and tier filters match. Flagged content
// produces analysis.flagged; HIGH tier content additionally produces
// analysis.high_risk, and network-flagged content with a known author
// produces actor.suspicious.
func (d *Dispatcher) DispatchDetection(ctx context.Context, res *analysis.Result) error {
	for _, eventType := range detectionEventTypes(res) {
		subs, err := d.store.GetByEvent(ctx, eventType)
		if err != nil {
			return fmt.Errorf("failed to get subscribers: %w", err)
		}

		event := newDetectionEvent(eventType, res)
		for _, sub := range subs {
			if !sub.Active || !sub.matches(res.Platform, res.RiskLevel) {
				continue
			}
			go d.send(sub, event)
		}
	}

	return nil
}

func newDetectionEvent(eventType EventType, res *analysis.Result) *Event {
	return &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"id":         res.ID,
			"userId":     res.UserID,
			"platform":   res.Platform,
			"riskLevel":  res.RiskLevel,
			"riskScore":  res.RiskScore,
			"flags":      res.Flags,
			"indicators": res.NetworkAnalysis.Indicators,
			"timestamp":  res.Timestamp,
		},
	}
}

// send delivers one event to one endpoint. It runs on its own goroutine
// with a fresh context, so in-flight deliveries survive the caller
// returning.
func (d *Dispatcher) send(sub *Subscription, event *Event) {
	if err := d.urlValidator(sub.URL); err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		d.recordFailure(sub, fmt.Sprintf("endpoint rejected: %v", err))
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		d.recordFailure(sub, "failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryWindow)
	defer cancel()

	err = retry.Do(ctx, d.retry.MaxAttempts, d.retry.BaseDelay, func() error {
		return d.post(ctx, sub, event, payload)
	})
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		d.recordFailure(sub, err.Error())
		return
	}

	metrics.WebhookDeliveriesTotal.WithLabelValues("success").Inc()
	d.recordSuccess(sub)
}

func (d *Dispatcher) post(ctx context.Context, sub *Subscription, event *Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sift-Event", string(event.Type))
	req.Header.Set("X-Sift-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))

	// Sign the payload if secret is set
	if sub.Secret != "" {
		req.Header.Set("X-Sift-Signature", d.sign(payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// The endpoint rejected the event; retrying will not help.
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

func (d *Dispatcher) sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) recordSuccess(sub *Subscription) {
	ctx, cancel := context.WithTimeout(context.Background(), statusUpdateTimeout)
	defer cancel()

	now := time.Now().UTC()
	sub.LastSuccess = &now
	sub.LastError = ""
	sub.ConsecutiveFailures = 0
	_ = d.store.Update(ctx, sub)
}

func (d *Dispatcher) recordFailure(sub *Subscription, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), statusUpdateTimeout)
	defer cancel()

	sub.LastError = errMsg
	sub.ConsecutiveFailures++
	if d.retry.MaxFailures > 0 && sub.ConsecutiveFailures >= d.retry.MaxFailures {
		// Endpoints that keep failing are disabled; register again to resume.
		sub.Active = false
	}
	_ = d.store.Update(ctx, sub)
}

// MemoryStore is an in-memory implementation for tests and single-node runs
type MemoryStore struct {
	subs map[string]*Subscription
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[string]*Subscription),
	}
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = cloneSubscription(sub)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, ErrNotFound
}

// List returns all subscriptions, newest first.
func (m *MemoryStore) List(ctx context.Context) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		result = append(result, cloneSubscription(sub))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// GetByEvent returns active subscriptions registered for the event type.
func (m *MemoryStore) GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if !sub.Active {
			continue
		}
		for _, et := range sub.Events {
			if et == eventType {
				result = append(result, cloneSubscription(sub))
				break
			}
		}
	}
	return result, nil
}

// Update overwrites an existing subscription. Missing IDs are a no-op,
// matching UPDATE semantics in the Postgres store.
func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return nil
	}
	m.subs[sub.ID] = cloneSubscription(sub)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

// cloneSubscription copies a subscription so store snapshots are not
// shared with concurrent delivery goroutines.
func cloneSubscription(sub *Subscription) *Subscription {
	c := *sub
	c.Events = append([]EventType(nil), sub.Events...)
	if sub.Platforms != nil {
		c.Platforms = append([]string(nil), sub.Platforms...)
	}
	if sub.LastSuccess != nil {
		t := *sub.LastSuccess
		c.LastSuccess = &t
	}
	return &c
}
