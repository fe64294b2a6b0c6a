package bigquery

import (
	"kbarsync/pkg/config"
	"kbarsync/pkg/connector/core"
	"kbarsync/pkg/connector/registry"
)

func init() {
	// Register BigQuery source connector in the global registry
	_ = registry.RegisterSource("bigquery", func(cfg *config.Config) (core.Source, error) {
		return NewBigQuerySource("bigquery", cfg)
	})

	// Also register as "bq" for convenience
	_ = registry.RegisterSource("bq", func(cfg *config.Config) (core.Source, error) {
		return NewBigQuerySource("bq", cfg)
	})
}
