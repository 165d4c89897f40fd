package config

import (
	"os"
	"strconv"

	"floodattr/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Data     DataConfig
	Output   OutputConfig
	Database DatabaseConfig
	Server   ServerConfig
	Analysis AnalysisConfig
}

// DataConfig holds input file paths
type DataConfig struct {
	PanelFile       string
	ProjectionsFile string
}

// OutputConfig holds export destinations
type OutputConfig struct {
	Dir string
}

// DatabaseConfig holds the optional results ledger connection
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds report server settings
type ServerConfig struct {
	Port string
}

// AnalysisConfig holds estimator conventions
type AnalysisConfig struct {
	ConfidenceLevel float64
	Estimator       string
	CIAggregation   string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Data: DataConfig{
			PanelFile:       os.Getenv("PANEL_FILE"),
			ProjectionsFile: os.Getenv("PROJECTIONS_FILE"),
		},
		Output: OutputConfig{
			Dir: getEnvDefault("OUTPUT_DIR", "output"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			Port: getEnvDefault("PORT", "8080"),
		},
		Analysis: AnalysisConfig{
			ConfidenceLevel: 0.95,
			Estimator:       getEnvDefault("ESTIMATOR", "paf"),
			CIAggregation:   getEnvDefault("CI_AGGREGATION", "delta"),
		},
	}

	if v := os.Getenv("CONFIDENCE_LEVEL"); v != "" {
		level, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid,
				errors.Wrap(err, "parsing CONFIDENCE_LEVEL"))
		}
		cfg.Analysis.ConfidenceLevel = level
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Analysis.ConfidenceLevel <= 0 || c.Analysis.ConfidenceLevel >= 1 {
		return errors.New(errors.CodeConfigInvalid, "CONFIDENCE_LEVEL must be in (0, 1)")
	}
	switch c.Analysis.Estimator {
	case "paf", "difference":
	default:
		return errors.New(errors.CodeConfigInvalid, "ESTIMATOR must be paf or difference")
	}
	switch c.Analysis.CIAggregation {
	case "delta", "sum-bounds":
	default:
		return errors.New(errors.CodeConfigInvalid, "CI_AGGREGATION must be delta or sum-bounds")
	}
	return nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
