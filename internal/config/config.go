// Package config loads application configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.
type Config struct {
	// HTTP server
	ListenAddr string

	// Logging
	LogLevel  string
	LogFormat string // "console" or "json"

	// Market-data provider
	MarketBaseURL string
	MarketAPIKey  string
	MarketTimeout time.Duration

	// Blockchain-data provider
	OnchainRPCURL  string
	OnchainTimeout time.Duration

	// Trading venue
	TradingBaseURL string
	TradingAPIKey  string
	TradingTimeout time.Duration

	// Discovery parameters
	DiscoveryLimit    int
	DiscoveryMinScore float64
	DiscoveryDays     int
	DiscoveryEVMOnly  bool

	// Storage
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool
}

// Load reads configuration from the environment. A .env file at path is
// loaded first when present; missing files are not an error.
func Load(path string) (*Config, error) {
	if path != "" {
		_ = godotenv.Load(path)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		MarketBaseURL: getEnv("MARKET_BASE_URL", "https://api.coingecko.com/api/v3"),
		MarketAPIKey:  getEnv("MARKET_API_KEY", ""),
		MarketTimeout: getEnvDuration("MARKET_TIMEOUT", 30*time.Second),

		OnchainRPCURL:  getEnv("ONCHAIN_RPC_URL", ""),
		OnchainTimeout: getEnvDuration("ONCHAIN_TIMEOUT", 30*time.Second),

		TradingBaseURL: getEnv("TRADING_BASE_URL", ""),
		TradingAPIKey:  getEnv("TRADING_API_KEY", ""),
		TradingTimeout: getEnvDuration("TRADING_TIMEOUT", 30*time.Second),

		DiscoveryLimit:    getEnvInt("DISCOVERY_LIMIT", 10),
		DiscoveryMinScore: getEnvFloat("DISCOVERY_MIN_SCORE", 20),
		DiscoveryDays:     getEnvInt("DISCOVERY_DAYS", 1),
		DiscoveryEVMOnly:  getEnvBool("DISCOVERY_EVM_ONLY", true),

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		ClickhouseDSN: getEnv("CLICKHOUSE_DSN", ""),
		UseMemory:     getEnvBool("USE_MEMORY", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	if c.OnchainRPCURL == "" {
		problems = append(problems, "ONCHAIN_RPC_URL is required")
	}
	if c.TradingBaseURL == "" {
		problems = append(problems, "TRADING_BASE_URL is required")
	}
	if c.TradingAPIKey == "" {
		problems = append(problems, "TRADING_API_KEY is required")
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		problems = append(problems, "POSTGRES_DSN is required unless USE_MEMORY=true")
	}
	if c.DiscoveryLimit <= 0 {
		problems = append(problems, "DISCOVERY_LIMIT must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
