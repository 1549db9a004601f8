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
	DataDir       string // Base directory for databases (always absolute)
	Port          int
	DevMode       bool
	LogLevel      string
	AdminToken    string // Shared secret guarding the administrative endpoints
	FMPAPIKey     string // Financial Modeling Prep API key (secondary quote provider)
	MarketConfig  string // Optional path to market tables TOML (overrides, FX rates, ...)
	RefreshCron   string // Cron spec for the scheduled all-positions refresh
	ResetCron     string // Cron spec for the monthly accumulator reset
	BackupCron    string // Cron spec for the nightly backup
	ProviderDelay time.Duration

	Backup *BackupConfig
}

// BackupConfig holds settings for the S3-compatible backup target.
// Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Custom endpoint for S3-compatible stores, empty for AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Keep            int // Number of remote backups to retain
}

// Enabled reports whether backup uploads are configured.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PECULE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("PECULE_PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		AdminToken:   getEnv("PECULE_ADMIN_TOKEN", ""),
		FMPAPIKey:    getEnv("FMP_API_KEY", ""),
		MarketConfig: getEnv("PECULE_MARKET_CONFIG", ""),
		// After the European close on weekdays; the provider previous-close
		// anchors the day boundary, so running after close keeps it stable.
		RefreshCron:   getEnv("PECULE_REFRESH_CRON", "30 18 * * 1-5"),
		ResetCron:     getEnv("PECULE_RESET_CRON", "5 0 1 * *"),
		BackupCron:    getEnv("PECULE_BACKUP_CRON", "0 3 * * *"),
		ProviderDelay: time.Duration(getEnvAsInt("PECULE_PROVIDER_DELAY_MS", 0)) * time.Millisecond,
		Backup: &BackupConfig{
			Bucket:          getEnv("BACKUP_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
			Region:          getEnv("BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
			Keep:            getEnvAsInt("BACKUP_KEEP", 7),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	// Admin token optional: admin endpoints reject all requests when unset.
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
