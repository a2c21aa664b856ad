package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/sift/internal/validation"
)

// Handler provides dashboard API endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new dashboard handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up dashboard routes under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard", h.GetDashboard)
	r.GET("/network-analysis", h.GetNetworkAnalysis)
}

// GetDashboard handles GET /dashboard
func (h *Handler) GetDashboard(c *gin.Context) {
	timeframe := c.Query("timeframe")
	platform := c.Query("platform")

	if errs := validation.Validate(
		validation.Timeframe("timeframe", timeframe),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	summary, err := h.svc.Summary(c.Request.Context(), timeframe, platform)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to build dashboard",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"dashboard": summary})
}

// GetNetworkAnalysis handles GET /network-analysis
func (h *Handler) GetNetworkAnalysis(c *gin.Context) {
	actors, err := h.svc.SuspiciousActors(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to analyze network activity",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"suspiciousActors": actors,
		"count":            len(actors),
	})
}
