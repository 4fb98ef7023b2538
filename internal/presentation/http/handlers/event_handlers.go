package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/services"
	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// EventHandlers ingests analytics events and session-end beacons
type EventHandlers struct {
	sinkService *services.SinkService
	logger      *logging.ChanneledLogger
}

// NewEventHandlers creates event handlers with injected dependencies
func NewEventHandlers(sinkService *services.SinkService, logger *logging.ChanneledLogger) *EventHandlers {
	return &EventHandlers{sinkService: sinkService, logger: logger}
}

// TrackEvent handles POST /api/v1/events
func (h *EventHandlers) TrackEvent(c *gin.Context) {
	var req struct {
		EventType string         `json:"eventType" binding:"required"`
		Payload   map[string]any `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result := h.sinkService.TrackEvent(c.Request.Context(), req.EventType, req.Payload)
	if !result.Success {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Beacon handles POST /api/v1/beacon. Browsers send beacons as text/plain,
// so the body is bound as JSON regardless of content type.
func (h *EventHandlers) Beacon(c *gin.Context) {
	var summary tracking.SessionSummary
	if err := c.ShouldBindJSON(&summary); err != nil || summary.SessionID == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if summary.EndTime.IsZero() {
		summary.EndTime = time.Now().UTC()
	}

	result := h.sinkService.RecordAnalytics(c.Request.Context(), tracking.AnalyticsEvent{
		EventType: "session_end",
		Payload:   map[string]any{"durationMs": summary.DurationMs},
		Timestamp: summary.EndTime,
		UserID:    summary.UserID,
		SessionID: summary.SessionID,
	})
	if !result.Success {
		h.logger.Beacon().Warn("Session beacon not stored", "error", result.Error)
	}
	c.Status(http.StatusNoContent)
}
