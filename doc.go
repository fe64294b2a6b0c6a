// Package kbarsync snapshots daily stock candlestick (kbar) data from a
// Google BigQuery table into a local SQLite database file.
//
// A run reads the entire source table in a single ordered query, converts
// every row into a models.Kbar, and upserts the rows into the daily_kbars
// table inside one SQLite transaction. The transaction commits only after
// the last batch is written, so a failed run leaves the database file
// exactly as it was before the run started.
//
// # Architecture
//
// The module is organized as a small connector framework:
//
//   - pkg/connector/core defines the Source and Destination contracts.
//   - pkg/connector/sources/bigquery reads rows from BigQuery.
//   - pkg/connector/destinations/sqlite writes rows to SQLite.
//   - pkg/connector/registry wires named connectors to their factories.
//   - internal/pipeline drives the read, convert, batch, flush loop.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "kbarsync/internal/pipeline"
//	    "kbarsync/pkg/config"
//	    "kbarsync/pkg/connector/registry"
//
//	    _ "kbarsync/pkg/connector/destinations/sqlite"
//	    _ "kbarsync/pkg/connector/sources/bigquery"
//	)
//
//	cfg := config.NewConfig()
//	cfg.Source.ProjectID = "my-project"
//	cfg.Source.DatasetID = "market_data"
//	cfg.Source.TableID = "daily_kbars"
//	cfg.Sink.Path = "kbars.db"
//
//	source, _ := registry.CreateSource("bigquery", cfg)
//	dest, _ := registry.CreateDestination("sqlite", cfg)
//
//	transfer := pipeline.NewTransfer(source, dest, pipeline.DefaultTransferConfig())
//	err := transfer.Run(context.Background())
//
// The kbarsync command in cmd/kbarsync wraps the same flow behind a CLI.
package kbarsync
