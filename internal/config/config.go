// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for all databases (always absolute)
	LogLevel      string
	Port          int
	DevMode       bool
	PortfolioPath string // Path to the YAML portfolio configuration
	Schedule      string // Cron expression (with seconds) for the daily rebalance
	RedisAddr     string // Optional; empty disables the price-history cache
	Broker        BrokerConfig
	Backup        *BackupConfig
}

// BrokerConfig holds brokerage credentials for both environments.
// Only the credentials for the selected mode are ever handed to the gateway.
type BrokerConfig struct {
	Mode              domain.TradingMode
	LiveConfirmed     bool
	PaperAPIKey       string
	PaperAPISecret    string
	LiveAPIKey        string
	LiveAPISecret     string
	DataURL           string
	Timeout           time.Duration
	RequestsPerMinute int
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Enabled         bool
	Endpoint        string // Custom endpoint for S3-compatible stores, empty for AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Credentials returns the key pair for the configured mode
func (b BrokerConfig) Credentials() (key, secret string) {
	if b.Mode == domain.TradingModeLive {
		return b.LiveAPIKey, b.LiveAPISecret
	}
	return b.PaperAPIKey, b.PaperAPISecret
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CAPITOL_DATA_DIR", "")
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
		DataDir:       absDataDir,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Port:          getEnvAsInt("GO_PORT", 8001),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		PortfolioPath: getEnv("PORTFOLIO_CONFIG", filepath.Join(absDataDir, "portfolio.yaml")),
		Schedule:      getEnv("REBALANCE_SCHEDULE", "0 30 8 * * MON-FRI"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		Broker:        loadBrokerConfig(),
		Backup:        loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
// Safety errors here are fatal: no gateway may be constructed afterwards.
func (c *Config) Validate() error {
	switch c.Broker.Mode {
	case domain.TradingModePaper:
	case domain.TradingModeLive:
		if !c.Broker.LiveConfirmed {
			return domain.ErrLiveTradingNotConfirmed
		}
	default:
		return fmt.Errorf("invalid TRADING_MODE %q (expected paper or live)", c.Broker.Mode)
	}

	if key, secret := c.Broker.Credentials(); key == "" || secret == "" {
		return fmt.Errorf("%w: %s", domain.ErrMissingCredentials, c.Broker.Mode)
	}

	if c.Broker.Timeout <= 0 {
		return fmt.Errorf("broker timeout must be positive")
	}

	if c.Backup != nil && c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("BACKUP_BUCKET is required when backups are enabled")
	}

	return nil
}

func loadBrokerConfig() BrokerConfig {
	return BrokerConfig{
		// Paper unless explicitly asked otherwise
		Mode:              domain.TradingMode(strings.ToLower(getEnv("TRADING_MODE", string(domain.TradingModePaper)))),
		LiveConfirmed:     getEnvAsBool("LIVE_TRADING_CONFIRMED", false),
		PaperAPIKey:       getEnv("ALPACA_PAPER_API_KEY", ""),
		PaperAPISecret:    getEnv("ALPACA_PAPER_API_SECRET", ""),
		LiveAPIKey:        getEnv("ALPACA_LIVE_API_KEY", ""),
		LiveAPISecret:     getEnv("ALPACA_LIVE_API_SECRET", ""),
		DataURL:           getEnv("ALPACA_DATA_URL", ""),
		Timeout:           time.Duration(getEnvAsInt("BROKER_TIMEOUT_SECONDS", 30)) * time.Second,
		RequestsPerMinute: getEnvAsInt("BROKER_REQUESTS_PER_MINUTE", 180),
	}
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		Bucket:          getEnv("BACKUP_BUCKET", ""),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
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
