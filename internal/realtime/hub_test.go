package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mbd888/sift/internal/analysis"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func detectionEvent(platform, level string, score int) *Event {
	return &Event{
		Type:      EventDetection,
		Timestamp: time.Now(),
		Data: &Detection{
			ID:        "an_1",
			Platform:  platform,
			RiskLevel: level,
			RiskScore: score,
		},
	}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := detectionEvent("twitter", "MINIMAL", 0)
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventHighRisk},
	}}

	detection := detectionEvent("twitter", "MEDIUM", 60)
	highRisk := &Event{Type: EventHighRisk, Data: &Detection{RiskLevel: "HIGH", RiskScore: 95}}

	if h.shouldSend(client, detection) {
		t.Error("Should NOT receive detection events")
	}
	if !h.shouldSend(client, highRisk) {
		t.Error("Should receive high_risk events")
	}
}

func TestShouldSend_PlatformFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Platforms: []string{"twitter"},
	}}

	if !h.shouldSend(client, detectionEvent("twitter", "LOW", 30)) {
		t.Error("Should match on platform")
	}
	if h.shouldSend(client, detectionEvent("facebook", "LOW", 30)) {
		t.Error("Should NOT match other platforms")
	}
}

func TestShouldSend_LevelFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Levels: []string{"HIGH", "MEDIUM"},
	}}

	if !h.shouldSend(client, detectionEvent("twitter", "HIGH", 85)) {
		t.Error("Should match HIGH tier")
	}
	if !h.shouldSend(client, detectionEvent("twitter", "MEDIUM", 60)) {
		t.Error("Should match MEDIUM tier")
	}
	if h.shouldSend(client, detectionEvent("twitter", "MINIMAL", 0)) {
		t.Error("Should NOT match MINIMAL tier")
	}
}

func TestShouldSend_MinScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinScore: 50,
	}}

	if !h.shouldSend(client, detectionEvent("twitter", "HIGH", 80)) {
		t.Error("Should receive detections at or above the minimum")
	}
	if h.shouldSend(client, detectionEvent("twitter", "LOW", 40)) {
		t.Error("Should NOT receive detections below the minimum")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	if !h.shouldSend(client, detectionEvent("twitter", "LOW", 30)) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonDetectionData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Platforms: []string{"twitter"},
	}}

	// Event with non-detection data should not crash
	event := &Event{
		Type: EventDetection,
		Data: "string data not a detection",
	}

	// Detection filters skip other payloads, so the event passes through
	if !h.shouldSend(client, event) {
		t.Error("Non-detection data should pass through detection filters")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(detectionEvent("twitter", "LOW", 30))
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(detectionEvent("twitter", "MEDIUM", 65))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_EmitDetectionHighRisk(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.EmitDetection(&analysis.Result{
		ID:        "an_hr",
		Platform:  "twitter",
		RiskScore: 95,
		RiskLevel: analysis.LevelHigh,
		Flags:     []string{analysis.FlagKeywords},
		Timestamp: time.Now(),
	})

	// HIGH results arrive twice: detection first, then high_risk.
	wantTypes := []EventType{EventDetection, EventHighRisk}
	for _, want := range wantTypes {
		select {
		case msg := <-client.send:
			var got struct {
				Type EventType `json:"type"`
				Data Detection `json:"data"`
			}
			if err := json.Unmarshal(msg, &got); err != nil {
				t.Fatalf("Bad event payload: %v", err)
			}
			if got.Type != want {
				t.Errorf("Expected event type %s, got %s", want, got.Type)
			}
			if got.Data.ID != "an_hr" || got.Data.RiskScore != 95 {
				t.Errorf("Unexpected detection payload: %+v", got.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for %s event", want)
		}
	}
}

func TestHub_EmitDetectionBelowHighTier(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.EmitDetection(&analysis.Result{
		ID:        "an_med",
		Platform:  "twitter",
		RiskScore: 60,
		RiskLevel: analysis.LevelMedium,
		Timestamp: time.Now(),
	})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		// detection event
	default:
		t.Fatal("Expected a detection event")
	}
	select {
	case msg := <-client.send:
		t.Errorf("Expected no second event for MEDIUM tier, got %s", msg)
	default:
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants high_risk alerts
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventHighRisk}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a detection event (should be filtered out)
	h.Broadcast(detectionEvent("twitter", "LOW", 30))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive detection event")
	default:
		// Good - filtered out
	}

	// Send a high_risk event (should be received)
	h.Broadcast(&Event{
		Type:      EventHighRisk,
		Timestamp: time.Now(),
		Data:      &Detection{ID: "an_2", RiskLevel: "HIGH", RiskScore: 90},
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive high_risk event")
	}
}
