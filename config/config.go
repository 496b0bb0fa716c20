package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"eodmarker/database"
)

// Lock provider names accepted in LOCK_PROVIDER
const (
	LockProviderPostgres = "postgres"
	LockProviderRedis    = "redis"
	LockProviderMongo    = "mongo"
	LockProviderMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// EOD job configuration
	Timezone       string        // IANA zone the business date and schedule are evaluated in
	Schedule       string        // 5-field cron expression in Timezone
	LockName       string        // Cluster-wide lock name for the job
	LockAtLeastFor time.Duration // Minimum time the lock is held after acquisition
	LockAtMostFor  time.Duration // Time after which the lock expires even if never released

	// Lock backend configuration
	LockProvider  string // "postgres", "redis", "mongo" or "memory"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MongoURI      string
	MongoDatabase string

	// Instance identity, used as the lock owner prefix
	InstanceID string

	// HTTP configuration
	HTTPAddr string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated), empty disables publishing

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelServiceName          string
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Environment
	Environment string // "development", "production" or "test"
}

// Load reads configuration from the environment and an optional .env file
func Load() (*Config, error) {
	return load()
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// Location loads the configured business timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// load loads configuration from environment variables
func load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	config := &Config{
		// Database
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		// EOD job defaults: 11:30 PM New York time, Monday to Friday
		Timezone:       getEnvWithDefault("EOD_TIMEZONE", "America/New_York"),
		Schedule:       getEnvWithDefault("EOD_SCHEDULE", "30 23 * * 1-5"),
		LockName:       getEnvWithDefault("EOD_LOCK_NAME", "eod-job"),
		LockAtLeastFor: time.Minute,
		LockAtMostFor:  30 * time.Minute,

		// Lock backend
		LockProvider:  getEnvWithDefault("LOCK_PROVIDER", LockProviderPostgres),
		RedisAddr:     getEnvWithDefault("REDIS_ADDR", "redis:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		MongoURI:      getEnvWithDefault("MONGO_URI", "mongodb://mongo:27017"),
		MongoDatabase: getEnvWithDefault("MONGO_DATABASE", "eodmarker"),

		InstanceID: os.Getenv("INSTANCE_ID"),

		// HTTP
		HTTPAddr: getEnvWithDefault("HTTP_ADDR", ":8080"),

		// NATS
		NATSServers: os.Getenv("NATS_SERVERS"),

		// OpenTelemetry
		OTelEnabled:              os.Getenv("OTEL_ENABLED") == "true",
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "eodmarker"),
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelExportIntervalMillis: 30000,

		// Logging
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if v := os.Getenv("EOD_LOCK_AT_LEAST_FOR"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EOD_LOCK_AT_LEAST_FOR: %w", err)
		}
		config.LockAtLeastFor = d
	}
	if v := os.Getenv("EOD_LOCK_AT_MOST_FOR"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EOD_LOCK_AT_MOST_FOR: %w", err)
		}
		config.LockAtMostFor = d
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid REDIS_DB: %q", v)
		}
		config.RedisDB = parsed
	}
	if v := os.Getenv("OTEL_EXPORT_INTERVAL_MS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid OTEL_EXPORT_INTERVAL_MS: %q", v)
		}
		config.OTelExportIntervalMillis = parsed
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Environment != "test" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	// If DatabaseName is provided, ensure it's not empty
	if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
		return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if strings.TrimSpace(c.LockName) == "" {
		return fmt.Errorf("EOD_LOCK_NAME cannot be empty")
	}
	if c.LockAtLeastFor < 0 {
		return fmt.Errorf("EOD_LOCK_AT_LEAST_FOR cannot be negative")
	}
	if c.LockAtMostFor <= 0 || c.LockAtMostFor < c.LockAtLeastFor {
		return fmt.Errorf("EOD_LOCK_AT_MOST_FOR must be positive and not shorter than EOD_LOCK_AT_LEAST_FOR")
	}
	switch c.LockProvider {
	case LockProviderPostgres, LockProviderRedis, LockProviderMongo, LockProviderMemory:
	default:
		return fmt.Errorf("unknown LOCK_PROVIDER: %s", c.LockProvider)
	}
	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Timezone:                 "America/New_York",
		Schedule:                 "30 23 * * 1-5",
		LockName:                 "eod-job",
		LockAtLeastFor:           time.Minute,
		LockAtMostFor:            30 * time.Minute,
		LockProvider:             LockProviderMemory,
		InstanceID:               "test-instance",
		HTTPAddr:                 "127.0.0.1:0",
		OTelServiceName:          "eodmarker",
		OTelExporterType:         "none",
		OTelExportIntervalMillis: 30000,
		LogLevel:                 "info",
		LogFormat:                "text",
		Environment:              "test",
	}
}
