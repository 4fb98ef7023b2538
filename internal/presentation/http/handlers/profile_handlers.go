// Package handlers provides HTTP handlers for the presentation layer.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/services"
	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// ProfileHandlers serves the current identity's profile
type ProfileHandlers struct {
	profileService *services.ProfileService
	logger         *logging.ChanneledLogger
}

// NewProfileHandlers creates profile handlers with injected dependencies
func NewProfileHandlers(profileService *services.ProfileService, logger *logging.ChanneledLogger) *ProfileHandlers {
	return &ProfileHandlers{profileService: profileService, logger: logger}
}

// GetProfile handles GET /api/v1/profile
func (h *ProfileHandlers) GetProfile(c *gin.Context) {
	h.logger.HTTP().Debug("Received profile request", "method", c.Request.Method, "path", c.Request.URL.Path)
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"stats":   h.profileService.UserStats(ctx),
		"profile": h.profileService.Profile(ctx),
	})
}

// GetHistory handles GET /api/v1/profile/history
func (h *ProfileHandlers) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultHistoryLimit)))
	history := h.profileService.HugHistory(c.Request.Context(), limit)
	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}

// GetHugStats handles GET /api/v1/profile/stats
func (h *ProfileHandlers) GetHugStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.profileService.HugStats(c.Request.Context()))
}

// GetExport handles GET /api/v1/profile/export
func (h *ProfileHandlers) GetExport(c *gin.Context) {
	export := h.profileService.Export(c.Request.Context())
	c.Header("Content-Disposition", "attachment; filename=hugtrack-user-"+strconv.FormatInt(export.ExportDate.UnixMilli(), 10)+".json")
	c.JSON(http.StatusOK, export)
}

// RecordHug handles POST /api/v1/hugs
func (h *ProfileHandlers) RecordHug(c *gin.Context) {
	start := time.Now()
	var req struct {
		Category string         `json:"category" binding:"required"`
		Payload  map[string]any `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	receipt := h.profileService.RecordHug(c.Request.Context(), req.Category, req.Payload)
	h.logger.HTTP().Info("Hug request completed", "success", receipt.Success, "backend", receipt.Backend, "duration", time.Since(start))
	if !receipt.Success {
		c.JSON(http.StatusInternalServerError, receipt)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// SetTheme handles PUT /api/v1/profile/theme
func (h *ProfileHandlers) SetTheme(c *gin.Context) {
	var req struct {
		Theme string `json:"theme" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	theme := tracking.Theme(req.Theme)
	if !theme.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": tracking.ErrInvalidTheme.Error(), "theme": req.Theme})
		return
	}
	result := h.profileService.SetTheme(c.Request.Context(), theme)
	if !result.Success {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme, "result": result})
}

// ToggleSound handles POST /api/v1/profile/sound
func (h *ProfileHandlers) ToggleSound(c *gin.Context) {
	enabled, result := h.profileService.ToggleSound(c.Request.Context())
	if !result.Success {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, gin.H{"soundEnabled": enabled, "result": result})
}
