package config

import (
	"os"
	"strconv"

	"sleepanalysis/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Analysis AnalysisConfig
	Paths    PathConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// DatabaseConfig holds optional run-archive settings. An empty URL disables
// the archive entirely; nothing in the analysis core needs a database.
type DatabaseConfig struct {
	URL string
}

// AnalysisConfig holds tuning knobs for the estimator and optimizer
type AnalysisConfig struct {
	BootstrapResamples int
	SearchCandidates   int
	ParetoPopulation   int
	ParetoGenerations  int
	Seed               int64
}

// PathConfig holds file system paths
type PathConfig struct {
	ExcelFile string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Analysis: AnalysisConfig{
			BootstrapResamples: getEnvIntOrDefault("BOOTSTRAP_RESAMPLES", 500),
			SearchCandidates:   getEnvIntOrDefault("SEARCH_CANDIDATES", 100),
			ParetoPopulation:   getEnvIntOrDefault("PARETO_POPULATION", 60),
			ParetoGenerations:  getEnvIntOrDefault("PARETO_GENERATIONS", 40),
			Seed:               int64(getEnvIntOrDefault("ANALYSIS_SEED", 42)),
		},
		Paths: PathConfig{
			ExcelFile: getEnvOrDefault("EXCEL_FILE", ""),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Analysis.BootstrapResamples < 1 {
		return errors.ConfigInvalid("BOOTSTRAP_RESAMPLES must be positive")
	}
	if config.Analysis.SearchCandidates < 1 {
		return errors.ConfigInvalid("SEARCH_CANDIDATES must be positive")
	}
	if config.Analysis.ParetoPopulation < 4 {
		return errors.ConfigInvalid("PARETO_POPULATION must be at least 4")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
