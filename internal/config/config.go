package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all client configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Remote ledger
	APIBaseURL string

	// Per-call deadline. Expiry is treated as a transport failure.
	HTTPTimeout time.Duration

	// Resilience (reads only — mutations are never retried)
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Persisted session
	SessionFile   string
	SessionSecret string

	// Local ops surface (/healthz, /metrics)
	OpsPort int

	// Observability
	LogLevel     string
	OTLPEndpoint string
	TracingOn    bool
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080/api"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		SessionFile:   getEnv("SESSION_FILE", defaultSessionFile()),
		SessionSecret: getEnv("SESSION_SECRET", "bankctl-local-dev-secret"),

		OpsPort: getEnvInt("OPS_PORT", 9090),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracingOn:    getEnv("TRACING_ENABLED", "false") == "true",
	}
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bankctl-session"
	}
	return filepath.Join(home, ".bankctl", "session")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
