// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the classification database and backup staging
	Port     int
	LogLevel string
	DevMode  bool

	// Path to the YAML file holding provider priorities and crash scenarios.
	TablesPath string

	// Authoritative classification lookup service.
	ClassifierBaseURL string
	ClassifierAPIKey  string

	// Classification cache tuning.
	MemoryCacheSize     int           // max entries in the in-process tier
	EntryTTL            time.Duration // persistent entry lifetime
	HeuristicTTL        time.Duration // memory-only lifetime for heuristic answers
	LookupConcurrency   int           // max in-flight authoritative calls
	LookupTimeout       time.Duration // per authoritative call
	BatchResolveTimeout time.Duration // overall budget for one batch resolution

	// S3-compatible backup target. Backups are disabled when the bucket is empty.
	BackupBucket    string
	BackupEndpoint  string
	BackupAccessKey string
	BackupSecretKey string
	BackupRetention int // days, 0 = keep forever
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CUSTODIAN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:    absDataDir,
		Port:       getEnvAsInt("CUSTODIAN_PORT", 8002),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		DevMode:    getEnvAsBool("DEV_MODE", false),
		TablesPath: getEnv("CUSTODIAN_TABLES_PATH", filepath.Join(absDataDir, "tables.yaml")),

		ClassifierBaseURL: getEnv("CLASSIFIER_BASE_URL", ""),
		ClassifierAPIKey:  getEnv("CLASSIFIER_API_KEY", ""),

		MemoryCacheSize:     getEnvAsInt("CLASSIFY_MEMORY_SIZE", 4096),
		EntryTTL:            getEnvAsDuration("CLASSIFY_ENTRY_TTL", 45*24*time.Hour),
		HeuristicTTL:        getEnvAsDuration("CLASSIFY_HEURISTIC_TTL", 15*time.Minute),
		LookupConcurrency:   getEnvAsInt("CLASSIFY_LOOKUP_CONCURRENCY", 12),
		LookupTimeout:       getEnvAsDuration("CLASSIFY_LOOKUP_TIMEOUT", 10*time.Second),
		BatchResolveTimeout: getEnvAsDuration("CLASSIFY_BATCH_TIMEOUT", 60*time.Second),

		BackupBucket:    getEnv("BACKUP_BUCKET", ""),
		BackupEndpoint:  getEnv("BACKUP_ENDPOINT", ""),
		BackupAccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		BackupSecretKey: getEnv("BACKUP_SECRET_KEY", ""),
		BackupRetention: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.MemoryCacheSize <= 0 {
		return fmt.Errorf("CLASSIFY_MEMORY_SIZE must be positive, got %d", c.MemoryCacheSize)
	}
	if c.LookupConcurrency <= 0 {
		return fmt.Errorf("CLASSIFY_LOOKUP_CONCURRENCY must be positive, got %d", c.LookupConcurrency)
	}
	if c.LookupTimeout <= 0 || c.BatchResolveTimeout <= 0 {
		return fmt.Errorf("classification timeouts must be positive")
	}

	// Note: ClassifierBaseURL optional - without it the authoritative tier is
	// skipped and every miss resolves heuristically.

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
