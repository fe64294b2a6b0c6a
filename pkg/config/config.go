// Package config provides the unified configuration system for kbarsync.
// It defines a single Config structure shared by the CLI, the connectors
// and the transfer pipeline, ensuring one consistent set of knobs for the
// whole run.
//
// The configuration is organized into logical sections:
//   - Source: BigQuery project/dataset/table, credentials, row limit
//   - Sink: SQLite database file path
//   - Performance: batch size for the transfer loop
//   - Observability: logging settings
//
// Example usage:
//
//	cfg := config.NewConfig()
//	cfg.Source.ProjectID = "life-is-a-vacation"
//	cfg.Source.DatasetID = "stock_data"
//	cfg.Source.TableID = "daily_kbars"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import "fmt"

// Config is the single unified configuration structure for a transfer run.
type Config struct {
	// Source holds the BigQuery side of the transfer
	Source SourceConfig `yaml:"source" json:"source"`

	// Sink holds the SQLite side of the transfer
	Sink SinkConfig `yaml:"sink" json:"sink"`

	// Performance settings control batching behavior
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Observability settings for logging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// SourceConfig identifies the remote table and how to authenticate to it.
type SourceConfig struct {
	// ProjectID is the Google Cloud project that owns the dataset
	ProjectID string `yaml:"project_id" json:"project_id"`
	// DatasetID is the BigQuery dataset
	DatasetID string `yaml:"dataset_id" json:"dataset_id"`
	// TableID is the BigQuery table to snapshot
	TableID string `yaml:"table_id" json:"table_id"`
	// CredentialsPath optionally points at a service account key file.
	// When empty or missing on disk, default application credentials are used.
	CredentialsPath string `yaml:"credentials_path" json:"credentials_path"`
	// Limit caps the number of rows read when positive (0 = all rows)
	Limit int64 `yaml:"limit" json:"limit"`
}

// SinkConfig identifies the local database file.
type SinkConfig struct {
	// Path is the SQLite database file, created if absent
	Path string `yaml:"path" json:"path"`
}

// PerformanceConfig contains performance-related settings.
type PerformanceConfig struct {
	// BatchSize controls the number of records upserted together
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// ObservabilityConfig contains logging settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogEncoding selects the log output format (json or console)
	LogEncoding string `yaml:"log_encoding" json:"log_encoding"`
}

// NewConfig creates a Config with sensible defaults. The source and sink
// identifiers have no meaningful defaults and must be supplied by the
// caller (flags or config file).
func NewConfig() *Config {
	return &Config{
		Performance: PerformanceConfig{
			BatchSize: 1000,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogEncoding: "json",
		},
	}
}

// Validate validates the configuration for correctness.
// It checks required fields and ensures values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Source.ProjectID == "" {
		return fmt.Errorf("source.project_id is required")
	}
	if c.Source.DatasetID == "" {
		return fmt.Errorf("source.dataset_id is required")
	}
	if c.Source.TableID == "" {
		return fmt.Errorf("source.table_id is required")
	}
	if c.Sink.Path == "" {
		return fmt.Errorf("sink.path is required")
	}
	if c.Performance.BatchSize <= 0 {
		return fmt.Errorf("performance.batch_size must be positive")
	}
	return nil
}

// HasLimit returns true if a row limit is configured
func (s *SourceConfig) HasLimit() bool {
	return s.Limit > 0
}

// TableRef returns the fully qualified `project.dataset.table` reference
func (s *SourceConfig) TableRef() string {
	return fmt.Sprintf("%s.%s.%s", s.ProjectID, s.DatasetID, s.TableID)
}
