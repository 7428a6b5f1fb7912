package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/lorry-checker/internal/pipeline"
)

// Config holds all lorry-checker configuration.
type Config struct {
	Rules    RulesConfig    `yaml:"rules"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RulesConfig tunes the four heuristics.
type RulesConfig struct {
	Checkpoint        string  `yaml:"checkpoint"`
	CheckInGapMinutes float64 `yaml:"check_in_gap_minutes"`
	DurationTolerance float64 `yaml:"duration_tolerance"`
	BTMDeltaThreshold float64 `yaml:"btm_delta_threshold"`
	BTMMaxExceedances int     `yaml:"btm_max_exceedances"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           string `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	ReadTimeout    string `yaml:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout"`
}

// StorageConfig configures where exports are published in Cloud Storage.
type StorageConfig struct {
	Bucket       string `yaml:"bucket"`
	ExportPrefix string `yaml:"export_prefix"`
}

// BigQueryConfig points at a weighbridge log table.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
	Table     string `yaml:"table"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Rules: RulesConfig{
			Checkpoint:        pipeline.DefaultCheckpoint,
			CheckInGapMinutes: pipeline.DefaultCheckInGapMinutes,
			DurationTolerance: pipeline.DefaultDurationTolerance,
			BTMDeltaThreshold: pipeline.DefaultBTMDeltaThreshold,
			BTMMaxExceedances: pipeline.DefaultBTMMaxExceedances,
		},
		Server: ServerConfig{
			Port:           "8080",
			MaxUploadBytes: 32 << 20,
			ReadTimeout:    "15s",
			WriteTimeout:   "15s",
		},
		Storage: StorageConfig{
			ExportPrefix: "exports",
		},
		BigQuery: BigQueryConfig{
			Dataset: "weighbridge",
			Table:   "transactions",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults and applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LORRY_CHECKPOINT"); v != "" {
		c.Rules.Checkpoint = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Server.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("BQ_PROJECT"); v != "" {
		c.BigQuery.ProjectID = v
	}
	if v := os.Getenv("BQ_DATASET"); v != "" {
		c.BigQuery.Dataset = v
	}
	if v := os.Getenv("BQ_TABLE"); v != "" {
		c.BigQuery.Table = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects thresholds the rule engine cannot work with.
func (c *Config) Validate() error {
	r := c.Rules
	if r.Checkpoint == "" {
		return fmt.Errorf("config: rules.checkpoint is required")
	}
	if r.CheckInGapMinutes <= 0 {
		return fmt.Errorf("config: rules.check_in_gap_minutes must be positive, got %v", r.CheckInGapMinutes)
	}
	if r.DurationTolerance < 0 || r.DurationTolerance >= 1 {
		return fmt.Errorf("config: rules.duration_tolerance must be in [0, 1), got %v", r.DurationTolerance)
	}
	if r.BTMDeltaThreshold <= 0 {
		return fmt.Errorf("config: rules.btm_delta_threshold must be positive, got %v", r.BTMDeltaThreshold)
	}
	if r.BTMMaxExceedances < 0 {
		return fmt.Errorf("config: rules.btm_max_exceedances must not be negative, got %d", r.BTMMaxExceedances)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}
	for name, v := range map[string]string{"read_timeout": c.Server.ReadTimeout, "write_timeout": c.Server.WriteTimeout} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config: server.%s: %w", name, err)
		}
	}
	return nil
}

// Options converts the rules section into pipeline options.
func (c *Config) Options() pipeline.Options {
	return pipeline.Options{
		Checkpoint:        c.Rules.Checkpoint,
		CheckInGapMinutes: c.Rules.CheckInGapMinutes,
		DurationTolerance: c.Rules.DurationTolerance,
		BTMDeltaThreshold: c.Rules.BTMDeltaThreshold,
		BTMMaxExceedances: c.Rules.BTMMaxExceedances,
	}
}

// ReadTimeout returns the parsed server read timeout.
func (c *Config) ReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ReadTimeout)
	return d
}

// WriteTimeout returns the parsed server write timeout.
func (c *Config) WriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.WriteTimeout)
	return d
}
