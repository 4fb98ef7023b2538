package middleware

import (
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// RequestLogger writes one http channel entry per request.
func RequestLogger(logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		log := logger.HTTP().Debug
		if status >= 500 {
			log = logger.HTTP().Error
		}
		log("Request completed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start))
	}
}
