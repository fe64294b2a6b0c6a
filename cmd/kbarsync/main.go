package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kbarsync/internal/pipeline"
	"kbarsync/pkg/config"
	"kbarsync/pkg/connector/registry"
	"kbarsync/pkg/logger"

	// Import all available connectors to register them
	_ "kbarsync/pkg/connector/destinations/sqlite"
	_ "kbarsync/pkg/connector/sources/bigquery"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	root := &cobra.Command{
		Use:   "kbarsync",
		Short: "kbarsync - BigQuery to SQLite daily kbar snapshot tool",
		Long: `kbarsync copies daily stock candlestick (kbar) rows from a BigQuery table
into a local SQLite file, producing an offline, queryable snapshot.
One query, one pass, one transaction: re-running against unchanged source
data leaves the snapshot unchanged.`,
	}

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kbarsync v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// List command to show available connectors
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available Source Connectors:")
			for _, source := range registry.ListSources() {
				fmt.Printf("  - %s\n", source)
			}
			fmt.Println("\nAvailable Destination Connectors:")
			for _, dest := range registry.ListDestinations() {
				fmt.Printf("  - %s\n", dest)
			}
		},
	})

	// Main run command
	var configFile string
	var projectID, datasetID, tableID string
	var dbPath, credentialsPath string
	var limit int64
	var batchSize int
	var timeout time.Duration
	var logLevel string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a snapshot transfer",
		Long: `Run one snapshot transfer from a BigQuery table into a local SQLite file.
Source and sink can be described in a YAML config file, with flags taking
precedence over file values.

Example:
  kbarsync run --project life-is-a-vacation --dataset stock_data --table daily_kbars --db daily_kbars.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfig()

			if configFile != "" {
				if err := config.Load(configFile, cfg); err != nil {
					return fmt.Errorf("configuration error: %w", err)
				}
			}

			// Flags override config file values when explicitly set
			if cmd.Flags().Changed("project") {
				cfg.Source.ProjectID = projectID
			}
			if cmd.Flags().Changed("dataset") {
				cfg.Source.DatasetID = datasetID
			}
			if cmd.Flags().Changed("table") {
				cfg.Source.TableID = tableID
			}
			if cmd.Flags().Changed("db") {
				cfg.Sink.Path = dbPath
			}
			if cmd.Flags().Changed("credentials") {
				cfg.Source.CredentialsPath = credentialsPath
			}
			if cmd.Flags().Changed("limit") {
				cfg.Source.Limit = limit
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.Performance.BatchSize = batchSize
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.LogLevel = logLevel
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			return runTransfer(cfg, timeout)
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file (optional)")
	runCmd.Flags().StringVar(&projectID, "project", "", "BigQuery project ID")
	runCmd.Flags().StringVar(&datasetID, "dataset", "", "BigQuery dataset ID")
	runCmd.Flags().StringVar(&tableID, "table", "", "BigQuery table ID")
	runCmd.Flags().StringVar(&dbPath, "db", "", "Path to the SQLite database file (created if absent)")
	runCmd.Flags().StringVar(&credentialsPath, "credentials", "", "Path to a service account credentials file (optional; default credentials are used when unset or missing)")
	runCmd.Flags().Int64Var(&limit, "limit", 0, "Maximum number of rows to transfer (0 = all rows)")
	runCmd.Flags().IntVar(&batchSize, "batch-size", 1000, "Number of records per upsert batch")
	runCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Transfer timeout")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runTransfer executes one snapshot transfer with the given configuration
func runTransfer(cfg *config.Config, timeout time.Duration) error {
	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	}); err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get().With(
		zap.String("component", "kbarsync-cli"),
		zap.String("source_table", cfg.Source.TableRef()),
		zap.String("sink_path", cfg.Sink.Path),
	)

	log.Info("starting snapshot transfer",
		zap.Int("batch_size", cfg.Performance.BatchSize),
		zap.Int64("limit", cfg.Source.Limit))

	// Create connectors
	source, err := registry.CreateSource("bigquery", cfg)
	if err != nil {
		return fmt.Errorf("failed to create source connector: %w", err)
	}

	destination, err := registry.CreateDestination("sqlite", cfg)
	if err != nil {
		return fmt.Errorf("failed to create destination connector: %w", err)
	}

	// Initialize connectors
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := source.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize source: %w", err)
	}
	defer func() {
		if err := source.Close(ctx); err != nil {
			log.Warn("failed to close source", zap.Error(err))
		}
	}()

	if err := destination.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize destination: %w", err)
	}
	defer func() {
		if err := destination.Close(ctx); err != nil {
			log.Warn("failed to close destination", zap.Error(err))
		}
	}()

	// Run transfer
	transfer := pipeline.NewTransfer(source, destination, &pipeline.TransferConfig{
		BatchSize: cfg.Performance.BatchSize,
	}, log)

	startTime := time.Now()
	if err := transfer.Run(ctx); err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}

	duration := time.Since(startTime)
	metrics := transfer.Metrics()
	rowsTransferred := metrics["rows_transferred"].(int64)

	log.Info("snapshot transfer completed successfully",
		zap.Duration("duration", duration),
		zap.Int64("rows_transferred", rowsTransferred),
		zap.Float64("rows_per_second", float64(rowsTransferred)/duration.Seconds()))

	return nil
}
