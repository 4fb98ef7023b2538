package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/container"
	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/gin-gonic/gin"
)

// HealthHandlers reports process and backend health
type HealthHandlers struct {
	container *container.Container
	started   time.Time
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(container *container.Container) *HealthHandlers {
	return &HealthHandlers{container: container, started: time.Now()}
}

// Health handles GET /health. The local store always serves, so the process
// is healthy whenever it answers; a lost remote store is reported as degraded.
func (h *HealthHandlers) Health(c *gin.Context) {
	ctx := c.Request.Context()
	backend := h.container.SinkService.ActiveBackend(ctx)
	status := "ok"
	if h.container.Remote != nil && backend != tracking.BackendRemote {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"backend":         backend,
		"remoteEnabled":   h.container.Remote != nil,
		"profileDegraded": h.container.ProfileService.Degraded(),
		"identityDurable": h.container.IdentityService.Durable(),
		"streamClients": gin.H{
			"analytics": h.container.Broadcaster.ClientCount(tracking.TopicAnalytics),
			"hugs":      h.container.Broadcaster.ClientCount(tracking.TopicHugs),
		},
		"uptime": time.Since(h.started).String(),
	})
}
