// Package server wires the HTTP API: storage selection, the scoring
// engine, middleware, routes, and the process lifecycle.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/mbd888/sift/internal/activity"
	"github.com/mbd888/sift/internal/analysis"
	"github.com/mbd888/sift/internal/config"
	"github.com/mbd888/sift/internal/dashboard"
	"github.com/mbd888/sift/internal/health"
	"github.com/mbd888/sift/internal/logging"
	"github.com/mbd888/sift/internal/metrics"
	"github.com/mbd888/sift/internal/ratelimit"
	"github.com/mbd888/sift/internal/realtime"
	"github.com/mbd888/sift/internal/security"
	"github.com/mbd888/sift/internal/traces"
	"github.com/mbd888/sift/internal/validation"
	"github.com/mbd888/sift/internal/webhooks"
)

// Version is reported by the health, version, and platform endpoints.
const Version = "0.1.0"

// Server is the main application server
type Server struct {
	cfg            *config.Config
	scoring        *analysis.Config
	engine         *analysis.Engine
	analysisStore  analysis.Store
	activitySvc    *activity.Service
	dashboardSvc   *dashboard.Service
	webhookStore   webhooks.Store
	dispatcher     *webhooks.Dispatcher
	hub            *realtime.Hub
	checks         *health.Registry
	rateLimiter    *ratelimit.Limiter
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScoringConfig overrides the scoring configuration (for testing)
func WithScoringConfig(sc analysis.Config) Option {
	return func(s *Server) {
		s.scoring = &sc
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set logger/scoring)
	for _, opt := range opts {
		opt(s)
	}

	if s.scoring == nil {
		sc := analysis.DefaultConfig()
		sc.LookupTimeout = cfg.LookupTimeout
		s.scoring = &sc
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		metrics.RegisterDBStats(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		// Analysis results with Postgres
		analysisStore := analysis.NewPostgresStore(db)
		if err := analysisStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate analysis store", "error", err)
		}
		s.analysisStore = analysisStore

		// Activity profiles with Postgres
		activityStore := activity.NewPostgresStore(db)
		if err := activityStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate activity store", "error", err)
		}
		s.activitySvc = activity.NewService(activityStore).WithHistoryLimit(cfg.HistoryLimit)
		s.logger.Info("activity tracking enabled")

		// Webhooks with Postgres
		webhookStore := webhooks.NewPostgresStore(db)
		if err := webhookStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		s.webhookStore = webhookStore
		s.logger.Info("webhooks enabled")
	} else {
		s.analysisStore = analysis.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")

		s.activitySvc = activity.NewService(activity.NewMemoryStore()).WithHistoryLimit(cfg.HistoryLimit)
		s.logger.Info("activity tracking enabled (in-memory)")

		s.webhookStore = webhooks.NewMemoryStore()
		s.logger.Info("webhooks enabled (in-memory)")
	}

	s.dispatcher = webhooks.NewDispatcher(s.webhookStore)
	s.dashboardSvc = dashboard.NewService(s.analysisStore)

	// Scoring engine, fed by the activity profiles it also updates
	engine := analysis.NewEngine(*s.scoring, s.analysisStore).
		WithHistory(&activityHistorySource{s.activitySvc}).
		WithActivity(&activitySink{s.activitySvc})
	if cfg.NetworkSim {
		engine = engine.WithNetwork(analysis.NewSimulatedNetwork(time.Now().UnixNano()))
		s.logger.Info("network data simulator enabled")
	}
	s.engine = engine

	// Create realtime hub for WebSocket streaming
	s.hub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	s.setupChecks()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// setupChecks registers the subsystem health checkers behind /health.
func (s *Server) setupChecks() {
	s.checks = health.NewRegistry()

	if s.db != nil {
		db := s.db
		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Healthy: false, Detail: err.Error()}
			}
			return health.Status{Healthy: true}
		})
	}

	s.checks.Register("hub", func(ctx context.Context) health.Status {
		st := health.Status{Healthy: true}
		if n, ok := s.hub.Stats()["connectedClients"].(int); ok {
			st.Detail = fmt.Sprintf("%d clients", n)
		}
		return st
	})
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(security.CORSMiddleware(origins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPS * 60,
		BurstSize:         s.cfg.RateLimitBurst,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/version", s.versionHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	v1.GET("/platform", s.platformHandler)

	// Scoring, with detections fanned out to websocket clients and
	// webhook subscribers
	fanout := &detectionFanout{
		hub:     s.hub,
		webhook: webhooks.NewEmitter(s.dispatcher, s.logger),
	}
	analysisHandler := analysis.NewHandler(s.engine, s.analysisStore).WithEvents(fanout)
	analysisHandler.RegisterRoutes(v1)

	// Aggregation reads
	dashboard.NewHandler(s.dashboardSvc).RegisterRoutes(v1)

	// Per-author activity profiles
	activity.NewHandler(s.activitySvc).RegisterRoutes(v1)

	// Webhook subscription management
	webhooks.NewHandler(s.webhookStore, s.dispatcher).RegisterRoutes(v1)

	// WebSocket for real-time detection streaming
	v1.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
}

// -----------------------------------------------------------------------------
// Info & health handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ok, statuses := s.checks.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		switch {
		case st.Healthy:
			checks[st.Name] = "healthy"
		case st.Detail != "":
			checks[st.Name] = "unhealthy: " + st.Detail
		default:
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) versionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "sift",
		"version": Version,
	})
}

// platformHandler returns service info and the primary API surface
func (s *Server) platformHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platform": gin.H{
			"name":        "sift",
			"version":     Version,
			"description": "Content risk scoring for coordinated anti-India campaigns",
		},
		"endpoints": gin.H{
			"analyze":   "POST /v1/analyze",
			"analyses":  "GET /v1/analyses",
			"dashboard": "GET /v1/dashboard?timeframe=1h|24h|7d",
			"network":   "GET /v1/network-analysis",
			"activity":  "GET /v1/users/{id}/activity",
			"webhooks":  "POST /v1/webhooks",
			"stream":    "GET /v1/ws",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing exports only when OTEL_EXPORTER_OTLP_ENDPOINT is set
	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush pending trace spans
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// activityHistorySource adapts activity.Service to analysis.HistorySource
type activityHistorySource struct {
	svc *activity.Service
}

func (a *activityHistorySource) History(ctx context.Context, userID string) (*analysis.UserHistory, error) {
	posts, err := a.svc.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}

	hist := &analysis.UserHistory{Posts: make([]analysis.HistoryPost, len(posts))}
	for i, p := range posts {
		hist.Posts[i] = analysis.HistoryPost{Content: p.Content, Timestamp: p.Timestamp}
	}
	return hist, nil
}

// activitySink adapts activity.Service to analysis.ActivitySink
type activitySink struct {
	svc *activity.Service
}

func (a *activitySink) RecordAnalysis(ctx context.Context, userID string, res *analysis.Result) error {
	post := activity.Post{
		Content:   res.Content,
		Platform:  res.Platform,
		Timestamp: res.Timestamp,
	}
	return a.svc.RecordPost(ctx, userID, post, res.RiskScore, res.Flagged())
}

// detectionFanout implements analysis.EventEmitter over both live
// consumers: the websocket hub and the webhook dispatcher.
type detectionFanout struct {
	hub     *realtime.Hub
	webhook *webhooks.Emitter
}

func (f *detectionFanout) EmitDetection(res *analysis.Result) {
	if f.hub != nil {
		f.hub.EmitDetection(res)
	}
	f.webhook.EmitDetection(res)
}
