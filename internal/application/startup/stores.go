package startup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/container"
	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/persistence/kv"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/persistence/remote"
	"github.com/AtRiskMedia/hugtrack-go/pkg/config"
)

// openStores opens the local media and the configured remote store. A local
// database that cannot be opened is replaced by an in-memory medium so the
// process still serves; a misconfigured remote store is an error.
func openStores(logger *logging.ChanneledLogger) (container.Dependencies, error) {
	deps := container.Dependencies{
		SessionMedium: kv.NewMemoryMedium(),
		Keys:          tracking.NewKeys(config.KeyNamespace),
		BeaconURL:     config.BeaconURL,
		BeaconTimeout: config.BeaconTimeout,
	}

	start := time.Now()
	persistent, closer, err := openLocalMedium(logger)
	if err != nil {
		logger.LogStartupPhase("local_store", time.Since(start), false, map[string]any{"error": err.Error(), "path": config.LocalDBPath})
		logger.Startup().Warn("Falling back to in-memory local store; data will not survive restart")
		persistent = kv.NewMemoryMedium()
	} else {
		logger.LogStartupPhase("local_store", time.Since(start), true, map[string]any{"path": config.LocalDBPath})
		if closer != nil {
			deps.Closers = append(deps.Closers, closer)
		}
	}
	deps.PersistentMedium = persistent

	start = time.Now()
	store, err := openRemoteStore(logger)
	if err != nil {
		logger.LogStartupPhase("remote_store", time.Since(start), false, map[string]any{"backend": config.RemoteBackend})
		return deps, err
	}
	if store != nil {
		deps.Remote = store
	}
	logger.LogStartupPhase("remote_store", time.Since(start), true, map[string]any{"backend": config.RemoteBackend})
	return deps, nil
}

func openLocalMedium(logger *logging.ChanneledLogger) (tracking.Medium, io.Closer, error) {
	if config.LocalDBPath == ":memory:" {
		return kv.NewMemoryMedium(), nil, nil
	}
	if dir := filepath.Dir(config.LocalDBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create local store directory: %w", err)
		}
	}
	medium, err := kv.OpenSQLiteMedium(config.LocalDBPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return medium, medium, nil
}

// openRemoteStore returns nil when no remote backend is configured.
func openRemoteStore(logger *logging.ChanneledLogger) (tracking.RemoteStore, error) {
	opts := remote.Options{
		ProbeTimeout:  config.RemoteProbeTimeout,
		PollInterval:  config.RemotePollInterval,
		SlowThreshold: config.SlowOperationThreshold,
	}

	var store tracking.RemoteStore
	switch config.RemoteBackend {
	case config.RemoteNone, "":
		logger.Startup().Info("No remote store configured, using local store only")
		return nil, nil
	case config.RemoteLibSQL:
		libsql, err := remote.OpenLibSQL(config.TursoDatabase, config.TursoToken, opts, logger)
		if err != nil {
			return nil, err
		}
		store = libsql
	case config.RemoteRedis:
		redis, err := remote.NewRedisStore(config.RedisAddr, config.RedisPrefix, opts, logger)
		if err != nil {
			return nil, err
		}
		store = redis
	default:
		return nil, fmt.Errorf("unknown REMOTE_BACKEND %q", config.RemoteBackend)
	}

	if !config.BreakerEnabled {
		return store, nil
	}
	return remote.NewGuardedStore(store, remote.BreakerSettings{
		Name:                config.RemoteBackend,
		ConsecutiveFailures: uint32(config.BreakerConsecutiveFailures),
		OpenTimeout:         config.BreakerOpenTimeout,
	}, logger), nil
}
