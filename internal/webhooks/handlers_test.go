package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupWebhookRouter(store Store, d *Dispatcher) *gin.Engine {
	r := gin.New()
	h := NewHandler(store, d)
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	return r
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// 203.0.113.0/24 is a documentation range: a public, non-routable
// literal that passes endpoint validation without DNS.
const allowedHookURL = "http://203.0.113.10/hook"

func TestCreateWebhook(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := postJSON(router, "/v1/webhooks", map[string]interface{}{
		"url":       allowedHookURL,
		"events":    []string{"analysis.flagged", "analysis.high_risk"},
		"platforms": []string{"twitter"},
		"minLevel":  "MEDIUM",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	webhook := body["webhook"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(webhook["id"].(string), "wh_"))
	assert.Equal(t, allowedHookURL, webhook["url"])
	assert.Equal(t, true, webhook["active"])
	assert.Equal(t, "MEDIUM", webhook["minLevel"])
	_, exposed := webhook["secret"]
	assert.False(t, exposed, "secret must not appear inside the webhook object")

	secret := body["secret"].(string)
	assert.Len(t, secret, 64)

	usage := body["usage"].(map[string]interface{})
	assert.Equal(t, "X-Sift-Signature", usage["header"])

	// Subscription is stored with the secret for signing
	stored, err := store.Get(context.Background(), webhook["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, secret, stored.Secret)
	assert.Equal(t, []EventType{EventAnalysisFlagged, EventAnalysisHighRisk}, stored.Events)
}

func TestCreateWebhook_InvalidBody(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := postJSON(router, "/v1/webhooks", map[string]interface{}{
		"events": []string{"analysis.flagged"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request", body["error"])
}

func TestCreateWebhook_RejectsBadURL(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := postJSON(router, "/v1/webhooks", map[string]interface{}{
		"url":    "ftp://example.com/hook",
		"events": []string{"analysis.flagged"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body["error"])
}

func TestCreateWebhook_RejectsLoopbackURL(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := postJSON(router, "/v1/webhooks", map[string]interface{}{
		"url":    "http://127.0.0.1/hook",
		"events": []string{"analysis.flagged"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateWebhook_RejectsUnknownEvent(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := postJSON(router, "/v1/webhooks", map[string]interface{}{
		"url":    allowedHookURL,
		"events": []string{"payment.received"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body["error"])
	assert.Contains(t, w.Body.String(), "unknown event type")
}

func TestCreateWebhook_RejectsUnknownLevel(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := postJSON(router, "/v1/webhooks", map[string]interface{}{
		"url":      allowedHookURL,
		"events":   []string{"analysis.flagged"},
		"minLevel": "SEVERE",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "minLevel")
}

func TestListWebhooks(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	for i := 0; i < 2; i++ {
		w := postJSON(router, "/v1/webhooks", map[string]interface{}{
			"url":    allowedHookURL,
			"events": []string{"analysis.flagged"},
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/webhooks", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["count"])

	hooks := body["webhooks"].([]interface{})
	require.Len(t, hooks, 2)
	first := hooks[0].(map[string]interface{})
	assert.Contains(t, first, "id")
	assert.Contains(t, first, "events")
	assert.NotContains(t, first, "secret")
}

func TestListWebhooks_Empty(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/webhooks", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Contains(t, w.Body.String(), `"webhooks":[]`)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["count"])
}

func TestDeleteWebhook(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	created := postJSON(router, "/v1/webhooks", map[string]interface{}{
		"url":    allowedHookURL,
		"events": []string{"analysis.flagged"},
	})
	require.Equal(t, http.StatusCreated, created.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &body))
	id := body["webhook"].(map[string]interface{})["id"].(string)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/v1/webhooks/"+id, nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deleted")

	// Second delete finds nothing
	w = httptest.NewRecorder()
	req = httptest.NewRequest("DELETE", "/v1/webhooks/"+id, nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTestWebhook_QueuesDelivery(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	var mu sync.Mutex
	var gotEvent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotEvent = r.Header.Get("X-Sift-Event")
		w.WriteHeader(200)
	}))
	defer server.Close()

	// Loopback URLs cannot be registered through the API, so seed the
	// store directly; the test dispatcher skips the SSRF check.
	store.Create(context.Background(), &Subscription{
		ID:     "wh_target",
		URL:    server.URL,
		Events: []EventType{EventAnalysisFlagged},
		Active: true,
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/webhooks/wh_target/test", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotEvent != ""
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "webhook.test", gotEvent)
}

func TestTestWebhook_NotFound(t *testing.T) {
	store := NewMemoryStore()
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/webhooks/wh_missing/test", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

type failingWebhookStore struct {
	*MemoryStore
}

func (f *failingWebhookStore) Create(ctx context.Context, sub *Subscription) error {
	return errors.New("store offline")
}

func (f *failingWebhookStore) List(ctx context.Context) ([]*Subscription, error) {
	return nil, errors.New("store offline")
}

func TestCreateWebhook_StorageFailure(t *testing.T) {
	store := &failingWebhookStore{NewMemoryStore()}
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := postJSON(router, "/v1/webhooks", map[string]interface{}{
		"url":    allowedHookURL,
		"events": []string{"analysis.flagged"},
	})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "storage_unavailable")
}

func TestListWebhooks_StorageFailure(t *testing.T) {
	store := &failingWebhookStore{NewMemoryStore()}
	router := setupWebhookRouter(store, newTestDispatcher(store))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/webhooks", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "storage_unavailable")
}
