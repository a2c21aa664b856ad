package analysis

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/sift/internal/pagination"
	"github.com/mbd888/sift/internal/validation"
)

// EventEmitter broadcasts detection events to live consumers.
type EventEmitter interface {
	EmitDetection(res *Result)
}

// Handler provides HTTP endpoints for scoring and result retrieval.
type Handler struct {
	engine *Engine
	store  Store
	events EventEmitter
}

// NewHandler creates a new analysis handler.
func NewHandler(engine *Engine, store Store) *Handler {
	return &Handler{engine: engine, store: store}
}

// WithEvents adds an event emitter.
func (h *Handler) WithEvents(events EventEmitter) *Handler {
	h.events = events
	return h
}

// RegisterRoutes sets up analysis routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/analyze", h.Analyze)
	r.GET("/analyses", h.ListAnalyses)
	r.GET("/analyses/:id", h.GetAnalysis)
	r.POST("/analyses/:id/resolve", h.ResolveAnalysis)
}

// AnalyzeRequest is the scoring submission body.
type AnalyzeRequest struct {
	Content  string       `json:"content"`
	Platform string       `json:"platform"`
	UserID   string       `json:"userId"`
	Hashtags []string     `json:"hashtags"`
	Network  *NetworkData `json:"networkData"`
}

// Analyze handles POST /analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("content", req.Content),
		validation.MaxLength("content", req.Content, validation.MaxContentLength),
		validation.MaxItems("hashtags", len(req.Hashtags), 50),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	result, err := h.engine.Score(c.Request.Context(), req.Content, Metadata{
		Platform: req.Platform,
		UserID:   req.UserID,
		Hashtags: req.Hashtags,
		Network:  req.Network,
	})
	if err != nil {
		if errors.Is(err, ErrAnalysisFailed) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "analysis_failed",
				"message": "Analysis failed",
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to persist analysis",
		})
		return
	}

	if h.events != nil {
		h.events.EmitDetection(result)
	}

	c.JSON(http.StatusCreated, gin.H{"analysis": result})
}

// GetAnalysis handles GET /analyses/:id
func (h *Handler) GetAnalysis(c *gin.Context) {
	result, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Analysis not found",
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to load analysis",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"analysis": result})
}

// ListAnalyses handles GET /analyses
func (h *Handler) ListAnalyses(c *gin.Context) {
	limit := 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	opts := []ListOption{}
	if p := c.Query("platform"); p != "" {
		opts = append(opts, WithPlatform(p))
	}
	if lvl := c.Query("level"); lvl != "" {
		if !ValidLevel(lvl) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": "level must be one of MINIMAL, LOW, MEDIUM, HIGH",
			})
			return
		}
		opts = append(opts, WithLevel(RiskLevel(lvl)))
	}
	if cur := c.Query("cursor"); cur != "" {
		opts = append(opts, WithCursor(cur))
	}

	// Fetch one extra to learn whether another page exists.
	results, err := h.store.List(c.Request.Context(), limit+1, opts...)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to list analyses",
		})
		return
	}

	page, nextCursor, hasMore := pagination.ComputePage(results, limit, func(r *Result) (time.Time, string) {
		return r.Timestamp, r.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"analyses":   page,
		"count":      len(page),
		"nextCursor": nextCursor,
		"hasMore":    hasMore,
	})
}

// ResolveRequest toggles the resolved flag on an analysis.
type ResolveRequest struct {
	Resolved *bool `json:"resolved" binding:"required"`
}

// ResolveAnalysis handles POST /analyses/:id/resolve
func (h *Handler) ResolveAnalysis(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Body must include resolved",
		})
		return
	}

	id := c.Param("id")
	if err := h.store.SetResolved(c.Request.Context(), id, *req.Resolved); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Analysis not found",
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to update analysis",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       id,
		"resolved": *req.Resolved,
	})
}
