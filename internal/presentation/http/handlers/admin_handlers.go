package handlers

import (
	"net/http"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/container"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/hugtrack-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// AdminHandlers handles operator authentication and maintenance
type AdminHandlers struct {
	container *container.Container
}

// NewAdminHandlers creates new admin handlers
func NewAdminHandlers(container *container.Container) *AdminHandlers {
	return &AdminHandlers{container: container}
}

// Login handles POST /api/v1/admin/login
func (h *AdminHandlers) Login(c *gin.Context) {
	var request struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if config.AdminJWTSecret == "" || config.AdminPasswordHash == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": security.ErrAdminDisabled.Error()})
		return
	}
	if err := security.CheckAdminPassword(config.AdminPasswordHash, request.Password); err != nil {
		h.container.Logger.HTTP().Warn("Admin login rejected", "clientIp", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	}

	token, err := security.GenerateAdminToken(config.AdminJWTSecret, config.AdminTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "role": "admin"})
}

// Export handles GET /api/v1/admin/export
func (h *AdminHandlers) Export(c *gin.Context) {
	export := h.container.AggregationService.ExportReport(c.Request.Context())
	c.Header("Content-Disposition", "attachment; filename="+export.FileName)
	c.JSON(http.StatusOK, export)
}

// ClearUser handles DELETE /api/v1/admin/user
func (h *AdminHandlers) ClearUser(c *gin.Context) {
	newUserID, result := h.container.ProfileService.Clear(c.Request.Context())
	if !result.Success {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": result.Error})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "newUserId": newUserID})
}

// ClearAnalytics handles DELETE /api/v1/admin/analytics
func (h *AdminHandlers) ClearAnalytics(c *gin.Context) {
	result := h.container.SinkService.ClearAnalytics()
	if !result.Success {
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetLogLevels handles GET /api/v1/admin/logs/levels - returns current log levels for all channels.
func (h *AdminHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Logger.GetChannelLevels())
}

// SetLogLevel handles POST /api/v1/admin/logs/levels - sets the log level for a specific channel.
func (h *AdminHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log level specified"})
		return
	}
	if err := h.container.Logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to set log level", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "channel": req.Channel, "level": level.String()})
}
