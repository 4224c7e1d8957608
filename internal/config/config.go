// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir                 string // Base directory for databases and reports (always absolute)
	ImportDir               string // Directory holding the CSV configuration layout
	StatsPath               string // Append-only CSV report of finished runs
	LogLevel                string
	Pretty                  bool    // Human-readable console logging
	TransactionFee          float64 // Default per-trade fee, overridable per run
	Threshold               float64 // Allocation drift that triggers rebalancing
	TradingExpenseThreshold float64 // Max fee/amount ratio for leftover cash buys
	SweepStepDays           int     // Inception date step for sweep runs
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PORTSIM_DATA_DIR", "")
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
		DataDir:                 absDataDir,
		ImportDir:               getEnv("PORTSIM_IMPORT_DIR", "./config"),
		StatsPath:               getEnv("PORTSIM_STATS_PATH", filepath.Join(absDataDir, "Stats.csv")),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		Pretty:                  getEnvAsBool("LOG_PRETTY", true),
		TransactionFee:          getEnvAsFloat("PORTSIM_TRANSACTION_FEE", 9.95),
		Threshold:               getEnvAsFloat("PORTSIM_THRESHOLD", 0.01),
		TradingExpenseThreshold: getEnvAsFloat("PORTSIM_TRADING_EXPENSE_THRESHOLD", 0.1),
		SweepStepDays:           getEnvAsInt("PORTSIM_SWEEP_STEP_DAYS", 10),
	}

	return cfg, nil
}

// DatabasePath returns the absolute path of a database file in the data
// directory.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
