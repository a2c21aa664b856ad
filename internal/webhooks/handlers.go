package webhooks

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/sift/internal/analysis"
	"github.com/mbd888/sift/internal/idgen"
	"github.com/mbd888/sift/internal/security"
	"github.com/mbd888/sift/internal/validation"
)

const maxPlatformFilters = 20

// Handler provides HTTP endpoints for webhook management
type Handler struct {
	store      Store
	dispatcher *Dispatcher
}

// NewHandler creates a new webhook handler
func NewHandler(store Store, dispatcher *Dispatcher) *Handler {
	return &Handler{
		store:      store,
		dispatcher: dispatcher,
	}
}

// RegisterRoutes sets up webhook routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks", h.CreateWebhook)
	r.GET("/webhooks", h.ListWebhooks)
	r.DELETE("/webhooks/:webhookId", h.DeleteWebhook)
	r.POST("/webhooks/:webhookId/test", h.TestWebhook)
}

// CreateWebhookRequest for creating a webhook subscription
type CreateWebhookRequest struct {
	URL       string   `json:"url" binding:"required"`
	Events    []string `json:"events" binding:"required"`
	Platforms []string `json:"platforms"`
	MinLevel  string   `json:"minLevel"`
}

// CreateWebhook handles POST /webhooks
func (h *Handler) CreateWebhook(c *gin.Context) {
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	var errs validation.ValidationErrors
	if err := security.ValidateEndpointURL(req.URL); err != nil {
		errs = append(errs, validation.ValidationError{Field: "url", Message: err.Error()})
	}
	events := make([]EventType, 0, len(req.Events))
	for _, e := range req.Events {
		et := EventType(e)
		if !ValidEventType(et) {
			errs = append(errs, validation.ValidationError{Field: "events", Message: "unknown event type " + e})
			continue
		}
		events = append(events, et)
	}
	if len(req.Platforms) > maxPlatformFilters {
		errs = append(errs, validation.ValidationError{Field: "platforms", Message: "too many items"})
	}
	if req.MinLevel != "" && !analysis.ValidLevel(req.MinLevel) {
		errs = append(errs, validation.ValidationError{Field: "minLevel", Message: "must be one of MINIMAL, LOW, MEDIUM, HIGH"})
	}
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	sub := &Subscription{
		ID:        idgen.WithPrefix("wh_"),
		URL:       req.URL,
		Secret:    idgen.Hex(32),
		Events:    events,
		Platforms: req.Platforms,
		MinLevel:  req.MinLevel,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to create webhook",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": sub,
		"secret":  sub.Secret, // Only shown once!
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-Sift-Signature",
		},
	})
}

// ListWebhooks handles GET /webhooks
func (h *Handler) ListWebhooks(c *gin.Context) {
	subs, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to list webhooks",
		})
		return
	}

	// Secrets are excluded by the Subscription JSON tags
	if subs == nil {
		subs = []*Subscription{}
	}

	c.JSON(http.StatusOK, gin.H{
		"webhooks": subs,
		"count":    len(subs),
	})
}

// DeleteWebhook handles DELETE /webhooks/:webhookId
func (h *Handler) DeleteWebhook(c *gin.Context) {
	id := c.Param("webhookId")

	if _, err := h.store.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Webhook not found",
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to load webhook",
		})
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to delete webhook",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "deleted",
		"message": "Webhook deleted",
	})
}

// TestWebhook handles POST /webhooks/:webhookId/test. It queues a
// webhook.test event for the endpoint, bypassing event filters, so
// consumers can verify their receiver and signature handling.
func (h *Handler) TestWebhook(c *gin.Context) {
	sub, err := h.store.Get(c.Request.Context(), c.Param("webhookId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Webhook not found",
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Failed to load webhook",
		})
		return
	}

	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      EventWebhookTest,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"webhookId": sub.ID,
			"message":   "Test delivery",
		},
	}
	go h.dispatcher.send(sub, event)

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "queued",
		"message": "Test event queued for delivery",
	})
}
