package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a sift server over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New creates a client for the sift API at baseURL,
// e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do makes an HTTP request and decodes the response into out when non-nil.
// Responses with status >= 400 become *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Code = ""
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Analyze submits content for scoring and returns the stored analysis.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	var resp struct {
		Analysis *Analysis `json:"analysis"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/analyze", nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Analysis, nil
}

// GetAnalysis fetches a stored analysis by ID.
func (c *Client) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	var resp struct {
		Analysis *Analysis `json:"analysis"`
	}
	path := "/v1/analyses/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Analysis, nil
}

// ListAnalyses returns one page of stored analyses, newest first.
func (c *Client) ListAnalyses(ctx context.Context, opts ListOptions) (*AnalysisPage, error) {
	q := url.Values{}
	if opts.Platform != "" {
		q.Set("platform", opts.Platform)
	}
	if opts.Level != "" {
		q.Set("level", opts.Level)
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	var page AnalysisPage
	if err := c.do(ctx, http.MethodGet, "/v1/analyses", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Resolve marks an analysis as reviewed (or reopens it with resolved=false).
func (c *Client) Resolve(ctx context.Context, id string, resolved bool) error {
	body := map[string]bool{"resolved": resolved}
	path := "/v1/analyses/" + url.PathEscape(id) + "/resolve"
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// Dashboard returns the moderation summary for a timeframe ("1h", "24h",
// or "7d"; empty means 24h), optionally scoped to one platform.
func (c *Client) Dashboard(ctx context.Context, timeframe, platform string) (*Dashboard, error) {
	q := url.Values{}
	if timeframe != "" {
		q.Set("timeframe", timeframe)
	}
	if platform != "" {
		q.Set("platform", platform)
	}

	var resp struct {
		Dashboard *Dashboard `json:"dashboard"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/dashboard", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dashboard, nil
}

// SuspiciousActors returns users whose recent history shows coordination
// indicators.
func (c *Client) SuspiciousActors(ctx context.Context) ([]Actor, error) {
	var resp struct {
		SuspiciousActors []Actor `json:"suspiciousActors"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/network-analysis", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.SuspiciousActors, nil
}

// UserActivity returns a user's recorded posts and risk profile. Limit
// caps how many posts are returned; 0 uses the server default.
func (c *Client) UserActivity(ctx context.Context, userID string, limit int) (*Activity, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Activity *Activity `json:"activity"`
	}
	path := "/v1/users/" + url.PathEscape(userID) + "/activity"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Activity, nil
}

// Health checks whether the server is reachable and healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}
