// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/AtRiskMedia/hugtrack-go/internal/application/container"
	"github.com/AtRiskMedia/hugtrack-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/hugtrack-go/internal/presentation/http/middleware"
	"github.com/AtRiskMedia/hugtrack-go/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(container.Logger))
	r.Use(middleware.CORSMiddleware(config.CORSOrigins))

	// Initialize handlers
	profileHandlers := handlers.NewProfileHandlers(container.ProfileService, container.Logger)
	eventHandlers := handlers.NewEventHandlers(container.SinkService, container.Logger)
	analyticsHandlers := handlers.NewAnalyticsHandlers(container.AggregationService, container.Logger)
	streamHandlers := handlers.NewStreamHandlers(container.SinkService, container.Broadcaster, config.CORSOrigins, container.Logger)
	adminHandlers := handlers.NewAdminHandlers(container)
	healthHandlers := handlers.NewHealthHandlers(container)

	r.GET("/health", healthHandlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/profile", profileHandlers.GetProfile)
		api.GET("/profile/history", profileHandlers.GetHistory)
		api.GET("/profile/stats", profileHandlers.GetHugStats)
		api.GET("/profile/export", profileHandlers.GetExport)
		api.PUT("/profile/theme", profileHandlers.SetTheme)
		api.POST("/profile/sound", profileHandlers.ToggleSound)

		api.POST("/hugs", profileHandlers.RecordHug)
		api.POST("/events", eventHandlers.TrackEvent)
		api.POST("/beacon", eventHandlers.Beacon)

		analyticsGroup := api.Group("/analytics")
		{
			analyticsGroup.GET("/stats", analyticsHandlers.HandleStats)
			analyticsGroup.GET("/timeline", analyticsHandlers.HandleTimeline)
			analyticsGroup.GET("/live", analyticsHandlers.HandleLive)
			analyticsGroup.GET("/report", analyticsHandlers.HandleReport)
			analyticsGroup.GET("/stream", streamHandlers.Stream)
		}

		adminAPI := api.Group("/admin")
		{
			adminAPI.POST("/login", adminHandlers.Login)

			// Admin Authenticated endpoints
			protected := adminAPI.Group("")
			protected.Use(middleware.AdminAuthMiddleware(config.AdminJWTSecret))
			{
				protected.GET("/export", adminHandlers.Export)
				protected.DELETE("/user", adminHandlers.ClearUser)
				protected.DELETE("/analytics", adminHandlers.ClearAnalytics)
				protected.GET("/logs/levels", adminHandlers.GetLogLevels)
				protected.POST("/logs/levels", adminHandlers.SetLogLevel)
			}
		}
	}

	return r
}
