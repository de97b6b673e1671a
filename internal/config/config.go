// Package config provides environment configuration for the client platform.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Backend settings
	BackendURL     string
	BackendAnonKey string
	BackendTimeout time.Duration

	// Realtime settings
	RealtimeProvider string
	NATSURL          string
	NATSToken        string
	RealtimeWSURL    string

	// Session persistence
	RedisAddr     string
	RedisPassword string

	// Search
	SearchDebounce time.Duration
	SearchPageSize int
	CityLookupURL  string

	// Metrics
	MetricsPort string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from the environment, honoring a local .env file
// when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Backend
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:54321"),
		BackendAnonKey: getEnv("BACKEND_ANON_KEY", ""),
		BackendTimeout: getDurationEnv("BACKEND_TIMEOUT", 15*time.Second),

		// Realtime
		RealtimeProvider: getEnv("REALTIME_PROVIDER", "nats"),
		NATSURL:          getEnv("NATS_URL", "nats://localhost:4222"),
		NATSToken:        getEnv("NATS_TOKEN", ""),
		RealtimeWSURL:    getEnv("REALTIME_WS_URL", "ws://localhost:4000/realtime"),

		// Session persistence
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// Search
		SearchDebounce: getDurationEnv("SEARCH_DEBOUNCE", 500*time.Millisecond),
		SearchPageSize: getIntEnv("SEARCH_PAGE_SIZE", 20),
		CityLookupURL:  getEnv("CITY_LOOKUP_URL", "https://servicodados.ibge.gov.br/api/v1/localidades/municipios?orderBy=nome"),

		// Metrics
		MetricsPort: getEnv("METRICS_PORT", "9091"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
