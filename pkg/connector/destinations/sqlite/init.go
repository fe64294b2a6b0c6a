package sqlite

import (
	"kbarsync/pkg/config"
	"kbarsync/pkg/connector/core"
	"kbarsync/pkg/connector/registry"
)

func init() {
	// Register SQLite destination connector in the global registry
	_ = registry.RegisterDestination("sqlite", func(cfg *config.Config) (core.Destination, error) {
		return NewSQLiteDestination("sqlite", cfg)
	})
}
