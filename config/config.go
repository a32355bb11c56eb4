package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Marketlake MarketlakeConfig `yaml:"marketlake"`
	Exchanges  []ExchangeConfig `yaml:"exchanges"`
	Manifest   ManifestConfig   `yaml:"manifest"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type MarketlakeConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ExchangeConfig maps an exchange code to its IANA timezone rule. Every
// exchange that appears in bronze metadata must be listed here; an unknown
// exchange is a configuration error, not a data error.
type ExchangeConfig struct {
	Code     string `yaml:"code"`
	Timezone string `yaml:"timezone"`
}

type ManifestConfig struct {
	Dir string `yaml:"dir"`
}

type IngestConfig struct {
	MaxWorkers int           `yaml:"max_workers"`
	Timeout    time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	DataDir         string   `yaml:"data_dir"`
	EventTable      string   `yaml:"event_table"`
	QuarantineTable string   `yaml:"quarantine_table"`
	Compression     string   `yaml:"compression"`
	S3              S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled           bool   `yaml:"enabled"`
	Region            string `yaml:"region"`
	Bucket            string `yaml:"bucket"`
	Prefix            string `yaml:"prefix"`
	AccessKeyID       string `yaml:"access_key_id"`
	SecretAccessKey   string `yaml:"secret_access_key"`
	UploadsPerSecond  int    `yaml:"uploads_per_second"`
	UploadBurst       int    `yaml:"upload_burst"`
}

type MetricsConfig struct {
	CloudWatch bool          `yaml:"cloudwatch"`
	Namespace  string        `yaml:"namespace"`
	Region     string        `yaml:"region"`
	Interval   time.Duration `yaml:"interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Ingest: IngestConfig{
			MaxWorkers: 4,
		},
		Storage: StorageConfig{
			EventTable:      "market_events",
			QuarantineTable: "market_events_quarantine",
			Compression:     "snappy",
		},
		Metrics: MetricsConfig{
			Interval: 30 * time.Second,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Marketlake.Name == "" {
		return fmt.Errorf("marketlake.name is required")
	}

	if cfg.Marketlake.Version == "" {
		return fmt.Errorf("marketlake.version is required")
	}

	if len(cfg.Exchanges) == 0 {
		return fmt.Errorf("at least one exchange must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Exchanges))
	for _, ex := range cfg.Exchanges {
		if ex.Code == "" {
			return fmt.Errorf("exchange code must not be empty")
		}
		if ex.Timezone == "" {
			return fmt.Errorf("exchange %q has no timezone", ex.Code)
		}
		if _, dup := seen[ex.Code]; dup {
			return fmt.Errorf("exchange %q configured twice", ex.Code)
		}
		seen[ex.Code] = struct{}{}
	}

	if cfg.Manifest.Dir == "" {
		return fmt.Errorf("manifest.dir is required")
	}

	if cfg.Ingest.MaxWorkers <= 0 {
		return fmt.Errorf("ingest.max_workers must be greater than 0")
	}

	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
	}

	return nil
}

// TimezoneTable returns the exchange timezone mapping in the form consumed by
// the partitioner.
func (c *Config) TimezoneTable() map[string]string {
	table := make(map[string]string, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		table[ex.Code] = ex.Timezone
	}
	return table
}
