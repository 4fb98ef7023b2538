// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/container"
	"github.com/AtRiskMedia/hugtrack-go/internal/application/services"
	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/hugtrack-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/hugtrack-go/pkg/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Initialize performs the complete startup sequence and blocks until the
// process is asked to stop.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	// Step 1: Channeled logger
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()
	logger.Startup().Info("Starting hugtrack", "port", config.Port, "remoteBackend", config.RemoteBackend)

	// Step 2: Stores
	deps, err := openStores(logger)
	if err != nil {
		return fmt.Errorf("failed to open stores: %w", err)
	}

	if err := ensureAdminSecret(logger); err != nil {
		return err
	}

	// Step 3: Dependency injection container
	appContainer := container.NewContainer(logger, deps)
	defer func() {
		if err := appContainer.Close(); err != nil {
			logger.Shutdown().Error("Error closing stores", "error", err.Error())
		}
	}()
	logger.Startup().Info("Singleton application services initialized via container")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Step 4: Identity and profile
	initStart := time.Now()
	profile := appContainer.ProfileService.Init(ctx)
	logger.LogStartupPhase("profile", time.Since(initStart), !appContainer.ProfileService.Degraded(), map[string]any{
		"userId":  logging.SanitizeUserID(profile.UserID),
		"backend": appContainer.SinkService.ActiveBackend(ctx),
	})

	// Step 5: Live feeds
	go appContainer.Broadcaster.Run(ctx)
	unsubscribers := publishFeeds(ctx, appContainer.SinkService, appContainer.Broadcaster)

	// Step 6: HTTP server and session timer
	httpServer := server.New(server.Options{
		Port:         config.Port,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}, appContainer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(func() error {
		runSessionTimer(gctx, appContainer)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
		return httpServer.Stop()
	})

	logger.Startup().Info("Application startup complete", "totalDuration", time.Since(start), "port", config.Port)

	err = g.Wait()
	shutdownStart := time.Now()

	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appContainer.ProfileService.Close(closeCtx)
	appContainer.BeaconService.Drain(config.BeaconTimeout)

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	return err
}

// publishFeeds forwards every sink delivery of both topics to pub.
func publishFeeds(ctx context.Context, sink *services.SinkService, pub messaging.Publisher) []func() {
	unsubscribers := make([]func(), 0, 2)
	for _, topic := range []tracking.Topic{tracking.TopicAnalytics, tracking.TopicHugs} {
		unsubscribers = append(unsubscribers, sink.Subscribe(ctx, topic, pub.Broadcast))
	}
	return unsubscribers
}

// ensureAdminSecret mints a per-process signing secret when an admin password
// is configured without one. Tokens issued with it do not survive a restart.
func ensureAdminSecret(logger *logging.ChanneledLogger) error {
	if config.AdminPasswordHash == "" || config.AdminJWTSecret != "" {
		return nil
	}
	secret, err := security.GenerateSecureKey(64)
	if err != nil {
		return fmt.Errorf("failed to generate admin secret: %w", err)
	}
	config.AdminJWTSecret = secret
	logger.Startup().Warn("ADMIN_JWT_SECRET not set, using an ephemeral secret for admin tokens")
	return nil
}

// runSessionTimer folds elapsed session time into the profile periodically.
func runSessionTimer(ctx context.Context, c *container.Container) {
	ticker := time.NewTicker(config.SessionTimerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if result := c.ProfileService.UpdateSessionTime(ctx); !result.Success {
				c.Logger.System().Warn("Session time not saved", "error", result.Error)
			}
		}
	}
}

func newLogger() (*logging.ChanneledLogger, error) {
	cfg := logging.DefaultLoggerConfig()
	cfg.JSONFormat = config.LogJSON
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		log.Printf("Invalid LOG_LEVEL %q, using INFO", config.LogLevel)
	}
	cfg.DefaultLevel = level
	return logging.NewChanneledLogger(cfg)
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
