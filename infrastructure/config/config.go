package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Deployment modes controlling how a year key maps to a fetch location.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// CacheFormatVersion tags durable cache entries. Entries written under a
// different version are treated as absent and purged on read.
const CacheFormatVersion = "1.0.0"

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Data source configuration
	DeploymentMode string // local | remote
	DataBaseURL    string // remote partition blob location
	DataDir        string // local partition blob directory (local mode)

	// Durable cache configuration
	BoltPath     string
	CacheVersion string

	// Memory cache configuration
	PartitionCapacity int

	// Fetch configuration
	FetchTimeout time.Duration
	FetchRetries int

	// Dataset bounds for cross-partition scans
	FirstYear int
	LastYear  int

	// Dynamic config file (optional)
	DynamicConfigPath string

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics bool
	EnableCORS    bool

	// Per-client request budget; 0 disables rate limiting
	RateLimitBurst int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		DeploymentMode: getEnv("DEPLOYMENT_MODE", ModeRemote),
		DataBaseURL:    getEnv("DATA_BASE_URL", "https://data.tok-reader.se/partitions"),
		DataDir:        getEnv("DATA_DIR", "./data"),

		BoltPath:     getEnv("BOLT_PATH", "./tok-cache.db"),
		CacheVersion: getEnv("CACHE_VERSION", CacheFormatVersion),

		PartitionCapacity: getEnvInt("PARTITION_CAPACITY", 3),

		FetchTimeout: time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 120)) * time.Second,
		FetchRetries: getEnvInt("FETCH_RETRIES", 3),

		FirstYear: getEnvInt("FIRST_YEAR", 1867),
		LastYear:  getEnvInt("LAST_YEAR", 1970),

		DynamicConfigPath: getEnv("DYNAMIC_CONFIG_PATH", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),

		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 0),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.DeploymentMode != ModeLocal && c.DeploymentMode != ModeRemote {
		return fmt.Errorf("DEPLOYMENT_MODE must be %q or %q", ModeLocal, ModeRemote)
	}
	if c.DeploymentMode == ModeRemote && c.DataBaseURL == "" {
		return fmt.Errorf("DATA_BASE_URL is required in remote mode")
	}
	if c.PartitionCapacity < 1 {
		return fmt.Errorf("PARTITION_CAPACITY must be at least 1")
	}
	if c.FirstYear > c.LastYear {
		return fmt.Errorf("FIRST_YEAR must not exceed LAST_YEAR")
	}
	return nil
}

// PartitionURL maps a year key to its remote retrieval location.
// Remote blobs are gzip-compressed.
func (c *Config) PartitionURL(year int) string {
	return fmt.Sprintf("%s/speeches-%d.db.gz", c.DataBaseURL, year)
}

// PartitionPath maps a year key to its on-disk location in local mode,
// where blobs are served uncompressed.
func (c *Config) PartitionPath(year int) string {
	return fmt.Sprintf("%s/speeches-%d.db", c.DataDir, year)
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
