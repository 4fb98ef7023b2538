// Package config provides centralized default values for hugtrack
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, redact(key, val), redact(key, defaultValue))
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := getEnvString(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// redact hides secrets in override logs.
func redact(key, value string) string {
	upper := strings.ToUpper(key)
	if value != "" && (strings.Contains(upper, "TOKEN") || strings.Contains(upper, "SECRET") || strings.Contains(upper, "HASH")) {
		return "****"
	}
	return value
}

// Remote backend selectors for REMOTE_BACKEND.
const (
	RemoteNone   = "none"
	RemoteLibSQL = "libsql"
	RemoteRedis  = "redis"
)

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	CORSOrigins        []string

	// Local Storage
	KeyNamespace string
	LocalDBPath  string

	// Remote Store
	RemoteBackend      string
	TursoDatabase      string
	TursoToken         string
	RedisAddr          string
	RedisPrefix        string
	RemoteProbeTimeout time.Duration
	RemotePollInterval time.Duration

	// Circuit Breaker
	BreakerEnabled             bool
	BreakerConsecutiveFailures int
	BreakerOpenTimeout         time.Duration

	// Session and Beacon
	SessionTimerInterval time.Duration
	BeaconURL            string
	BeaconTimeout        time.Duration

	// Admin
	AdminJWTSecret    string
	AdminPasswordHash string
	AdminTokenTTL     time.Duration

	// Logging
	LogLevel               string
	LogJSON                bool
	LogToFile              bool
	LogDirectory           string
	SlowOperationThreshold time.Duration
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	CORSOrigins = getEnvList("CORS_ORIGINS", []string{
		"http://localhost:3000",
		"http://localhost:4321",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:4321",
		"http://[::1]:3000",
		"http://[::1]:4321",
	})

	// Local Storage
	KeyNamespace = getEnvString("KEY_NAMESPACE", "app")
	LocalDBPath = getEnvString("LOCAL_DB_PATH", "data/local.db")

	// Remote Store
	RemoteBackend = strings.ToLower(getEnvString("REMOTE_BACKEND", RemoteNone))
	TursoDatabase = getEnvString("TURSO_DATABASE", "")
	TursoToken = getEnvString("TURSO_TOKEN", "")
	RedisAddr = getEnvString("REDIS_ADDR", "")
	RedisPrefix = getEnvString("REDIS_PREFIX", "hugtrack")
	RemoteProbeTimeout = getEnvDuration("REMOTE_PROBE_TIMEOUT", 2*time.Second)
	RemotePollInterval = getEnvDuration("REMOTE_POLL_INTERVAL", 3*time.Second)

	// Circuit Breaker
	BreakerEnabled = getEnvBool("BREAKER_ENABLED", true)
	BreakerConsecutiveFailures = getEnvInt("BREAKER_CONSECUTIVE_FAILURES", 5)
	BreakerOpenTimeout = getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second)

	// Session and Beacon
	SessionTimerInterval = getEnvDuration("SESSION_TIMER_INTERVAL", time.Minute)
	BeaconURL = getEnvString("BEACON_URL", "")
	BeaconTimeout = getEnvDuration("BEACON_TIMEOUT", 5*time.Second)

	// Admin
	AdminJWTSecret = getEnvString("ADMIN_JWT_SECRET", "")
	AdminPasswordHash = getEnvString("ADMIN_PASSWORD_HASH", "")
	AdminTokenTTL = getEnvDuration("ADMIN_TOKEN_TTL", 12*time.Hour)

	// Logging
	LogLevel = getEnvString("LOG_LEVEL", "INFO")
	LogJSON = getEnvBool("LOG_JSON", true)
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
	SlowOperationThreshold = getEnvDuration("SLOW_OPERATION_THRESHOLD", 500*time.Millisecond)
}
