package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/services"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// AnalyticsHandlers contains all analytics-related HTTP handlers
type AnalyticsHandlers struct {
	aggregationService *services.AggregationService
	logger             *logging.ChanneledLogger
}

// NewAnalyticsHandlers creates analytics handlers with injected dependencies
func NewAnalyticsHandlers(aggregationService *services.AggregationService, logger *logging.ChanneledLogger) *AnalyticsHandlers {
	return &AnalyticsHandlers{aggregationService: aggregationService, logger: logger}
}

// HandleStats handles GET /api/v1/analytics/stats
func (h *AnalyticsHandlers) HandleStats(c *gin.Context) {
	start := time.Now()
	h.logger.Analytics().Debug("Received stats request", "method", c.Request.Method, "path", c.Request.URL.Path)
	stats := h.aggregationService.ComputeStats(c.Request.Context())
	h.logger.Analytics().Info("Stats request completed", "users", stats.TotalUsers, "duration", time.Since(start))
	c.JSON(http.StatusOK, stats)
}

// HandleTimeline handles GET /api/v1/analytics/timeline
func (h *AnalyticsHandlers) HandleTimeline(c *gin.Context) {
	kind := services.TimelineKind(c.DefaultQuery("kind", string(services.TimelineHugs)))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be hugs or newUsers"})
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(services.DefaultTimelineDays)))
	if err != nil || days < 1 || days > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":     kind,
		"days":     days,
		"timeline": h.aggregationService.ComputeTimeline(c.Request.Context(), kind, days),
	})
}

// HandleLive handles GET /api/v1/analytics/live
func (h *AnalyticsHandlers) HandleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"liveUsers": h.aggregationService.EstimateLiveUsers(c.Request.Context()),
		"timestamp": time.Now().UTC(),
	})
}

// HandleReport handles GET /api/v1/analytics/report
func (h *AnalyticsHandlers) HandleReport(c *gin.Context) {
	c.JSON(http.StatusOK, h.aggregationService.Report(c.Request.Context()))
}
