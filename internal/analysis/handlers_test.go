package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mbd888/sift/internal/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type captureEmitter struct {
	events []*Result
}

func (e *captureEmitter) EmitDetection(res *Result) {
	e.events = append(e.events, res)
}

// setupAnalysisRouter wires a handler against in-memory storage.
func setupAnalysisRouter() (*gin.Engine, *MemoryStore, *captureEmitter) {
	store := NewMemoryStore()
	engine := NewEngine(DefaultConfig(), store)
	emitter := &captureEmitter{}
	handler := NewHandler(engine, store).WithEvents(emitter)

	r := gin.New()
	v1 := r.Group("/v1")
	handler.RegisterRoutes(v1)
	return r, store, emitter
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func getJSON(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	router.ServeHTTP(w, req)
	return w
}

type analysisPayload struct {
	Analysis struct {
		ID        string   `json:"id"`
		Content   string   `json:"content"`
		Platform  string   `json:"platform"`
		RiskScore int      `json:"riskScore"`
		RiskLevel string   `json:"riskLevel"`
		Flags     []string `json:"flags"`
		Sentiment struct {
			Comparative float64 `json:"comparative"`
		} `json:"sentiment"`
		NetworkAnalysis struct {
			Score      int      `json:"score"`
			Indicators []string `json:"indicators"`
		} `json:"networkAnalysis"`
		Explanation []string `json:"explanation"`
		Resolved    bool     `json:"resolved"`
	} `json:"analysis"`
}

// --- POST /v1/analyze ---

func TestAnalyzeEndpointFlagsHostileContent(t *testing.T) {
	router, _, emitter := setupAnalysisRouter()

	w := postJSON(router, "/v1/analyze", AnalyzeRequest{
		Content:  "Destroy India and its economy",
		Platform: "twitter",
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp analysisPayload
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Analysis.ID)
	assert.Equal(t, 95, resp.Analysis.RiskScore)
	assert.Equal(t, "HIGH", resp.Analysis.RiskLevel)
	assert.Equal(t, []string{FlagKeywords, FlagClassifier, FlagSentiment}, resp.Analysis.Flags)
	assert.Equal(t, "twitter", resp.Analysis.Platform)
	assert.Len(t, resp.Analysis.Explanation, 3)

	if assert.Len(t, emitter.events, 1) {
		assert.Equal(t, resp.Analysis.ID, emitter.events[0].ID)
	}
}

func TestAnalyzeEndpointCleanContent(t *testing.T) {
	router, _, _ := setupAnalysisRouter()

	w := postJSON(router, "/v1/analyze", AnalyzeRequest{Content: "i enjoyed the food and was happy"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp analysisPayload
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Analysis.RiskScore)
	assert.Equal(t, "MINIMAL", resp.Analysis.RiskLevel)
	assert.Equal(t, "unknown", resp.Analysis.Platform)
	assert.NotNil(t, resp.Analysis.Flags)
	assert.Empty(t, resp.Analysis.Flags)
}

func TestAnalyzeEndpointNetworkData(t *testing.T) {
	router, _, _ := setupAnalysisRouter()

	w := postJSON(router, "/v1/analyze", AnalyzeRequest{
		Content: "i enjoyed the food and was happy",
		Network: &NetworkData{
			SimultaneousPosts: 15,
			SharedContent:     SharedContent{SuspiciousPercentage: 0.8},
		},
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp analysisPayload
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 45, resp.Analysis.RiskScore)
	assert.Equal(t, 45, resp.Analysis.NetworkAnalysis.Score)
	assert.Equal(t, []string{FlagSync, FlagCoord}, resp.Analysis.NetworkAnalysis.Indicators)
	assert.Empty(t, resp.Analysis.Flags)
}

func TestAnalyzeEndpointRequiresContent(t *testing.T) {
	router, _, emitter := setupAnalysisRouter()

	for _, body := range []any{map[string]string{}, AnalyzeRequest{Content: "   "}} {
		w := postJSON(router, "/v1/analyze", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

		var resp map[string]interface{}
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "validation_failed", resp["error"])
		assert.NotNil(t, resp["details"])
	}
	assert.Empty(t, emitter.events)
}

func TestAnalyzeEndpointMalformedJSON(t *testing.T) {
	router, _, _ := setupAnalysisRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/analyze", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "invalid_request", resp["error"])
}

func TestAnalyzeEndpointContentTooLong(t *testing.T) {
	router, _, _ := setupAnalysisRouter()

	w := postJSON(router, "/v1/analyze", AnalyzeRequest{
		Content: strings.Repeat("a", validation.MaxContentLength+1),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "validation_failed", resp["error"])
}

func TestAnalyzeEndpointTooManyHashtags(t *testing.T) {
	router, _, _ := setupAnalysisRouter()

	tags := make([]string, 51)
	for i := range tags {
		tags[i] = fmt.Sprintf("#tag%d", i)
	}
	w := postJSON(router, "/v1/analyze", AnalyzeRequest{Content: "hello", Hashtags: tags})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestAnalyzeEndpointStorageFailure(t *testing.T) {
	store := &failingStore{NewMemoryStore()}
	engine := NewEngine(DefaultConfig(), store)
	handler := NewHandler(engine, store)

	r := gin.New()
	handler.RegisterRoutes(r.Group("/v1"))

	w := postJSON(r, "/v1/analyze", AnalyzeRequest{Content: "hello world"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "storage_unavailable", resp["error"])
}

// --- GET /v1/analyses/:id ---

func TestGetAnalysisEndpoint(t *testing.T) {
	router, _, _ := setupAnalysisRouter()

	w := postJSON(router, "/v1/analyze", AnalyzeRequest{Content: "भारत विरोधी", Platform: "twitter"})
	assert.Equal(t, http.StatusCreated, w.Code)

	var created analysisPayload
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = getJSON(router, "/v1/analyses/"+created.Analysis.ID)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var fetched analysisPayload
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.Analysis.ID, fetched.Analysis.ID)
	assert.Equal(t, 40, fetched.Analysis.RiskScore)
}

func TestGetAnalysisEndpointNotFound(t *testing.T) {
	router, _, _ := setupAnalysisRouter()

	w := getJSON(router, "/v1/analyses/an_missing")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "not_found", resp["error"])
}

// --- GET /v1/analyses ---

type listPayload struct {
	Analyses []struct {
		ID        string `json:"id"`
		RiskLevel string `json:"riskLevel"`
	} `json:"analyses"`
	Count      int    `json:"count"`
	NextCursor string `json:"nextCursor"`
	HasMore    bool   `json:"hasMore"`
}

func TestListAnalysesEndpoint(t *testing.T) {
	router, store, _ := setupAnalysisRouter()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_ = store.Save(context.Background(), testResult(fmt.Sprintf("an_%d", i), "twitter", 85, base.Add(time.Duration(i)*time.Minute)))
	}

	w := getJSON(router, "/v1/analyses")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp listPayload
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.False(t, resp.HasMore)
	if assert.Len(t, resp.Analyses, 3) {
		assert.Equal(t, "an_2", resp.Analyses[0].ID)
	}
}

func TestListAnalysesEndpointPagination(t *testing.T) {
	router, store, _ := setupAnalysisRouter()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_ = store.Save(context.Background(), testResult(fmt.Sprintf("an_%d", i), "twitter", 10, base.Add(time.Duration(i)*time.Minute)))
	}

	w := getJSON(router, "/v1/analyses?limit=3")
	assert.Equal(t, http.StatusOK, w.Code)

	var first listPayload
	_ = json.Unmarshal(w.Body.Bytes(), &first)
	assert.Equal(t, 3, first.Count)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextCursor)

	w = getJSON(router, "/v1/analyses?limit=3&cursor="+first.NextCursor)
	assert.Equal(t, http.StatusOK, w.Code)

	var second listPayload
	_ = json.Unmarshal(w.Body.Bytes(), &second)
	assert.Equal(t, 2, second.Count)
	assert.False(t, second.HasMore)

	seen := map[string]bool{}
	for _, a := range first.Analyses {
		seen[a.ID] = true
	}
	for _, a := range second.Analyses {
		assert.False(t, seen[a.ID], "page overlap on %s", a.ID)
	}
}

func TestListAnalysesEndpointLevelFilter(t *testing.T) {
	router, store, _ := setupAnalysisRouter()

	base := time.Now().Add(-time.Hour)
	_ = store.Save(context.Background(), testResult("an_high", "twitter", 85, base))
	_ = store.Save(context.Background(), testResult("an_low", "twitter", 30, base.Add(time.Minute)))

	w := getJSON(router, "/v1/analyses?level=HIGH")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp listPayload
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if assert.Equal(t, 1, resp.Count) {
		assert.Equal(t, "an_high", resp.Analyses[0].ID)
	}

	w = getJSON(router, "/v1/analyses?level=SEVERE")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- POST /v1/analyses/:id/resolve ---

func TestResolveAnalysisEndpoint(t *testing.T) {
	router, store, _ := setupAnalysisRouter()

	_ = store.Save(context.Background(), testResult("an_1", "twitter", 85, time.Now()))

	w := postJSON(router, "/v1/analyses/an_1/resolve", map[string]bool{"resolved": true})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "an_1", resp["id"])
	assert.Equal(t, true, resp["resolved"])

	stored, err := store.Get(context.Background(), "an_1")
	assert.NoError(t, err)
	assert.True(t, stored.Resolved)
}

func TestResolveAnalysisEndpointMissingBody(t *testing.T) {
	router, store, _ := setupAnalysisRouter()

	_ = store.Save(context.Background(), testResult("an_1", "twitter", 85, time.Now()))

	w := postJSON(router, "/v1/analyses/an_1/resolve", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveAnalysisEndpointNotFound(t *testing.T) {
	router, _, _ := setupAnalysisRouter()

	w := postJSON(router, "/v1/analyses/an_missing/resolve", map[string]bool{"resolved": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
