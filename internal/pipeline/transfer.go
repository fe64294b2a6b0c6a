// Package pipeline provides the transfer engine for kbarsync: one
// sequential pass that drains the source cursor, coerces each row into a
// Kbar, buffers fixed-size batches and applies them to the sink inside a
// single run transaction.
//
// # Execution model
//
// The transfer is deliberately single-threaded and blocking. The path is
//
//	disconnected -> connected -> schema-ready -> streaming
//	             -> (batch-flush)* -> committed
//
// and any error after connect rolls the run back in full, so no partial
// writes are ever observable in the sink.
//
// # Basic usage
//
//	transfer := pipeline.NewTransfer(source, destination, &pipeline.TransferConfig{
//	    BatchSize: 1000,
//	}, logger)
//
//	if err := transfer.Run(ctx); err != nil {
//	    // sink already rolled back
//	}
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kbarsync/pkg/connector/core"
	"kbarsync/pkg/errors"
	"kbarsync/pkg/models"
)

// Transfer orchestrates one snapshot run from source to destination.
type Transfer struct {
	source      core.Source
	destination core.Destination

	batchSize int

	// Metrics
	rowsTransferred int64
	batchesFlushed  int64
	startTime       time.Time

	logger *zap.Logger
}

// TransferConfig contains transfer configuration parameters.
type TransferConfig struct {
	// BatchSize is the number of records buffered before each upsert
	BatchSize int
}

// DefaultTransferConfig returns the default transfer configuration.
func DefaultTransferConfig() *TransferConfig {
	return &TransferConfig{
		BatchSize: 1000,
	}
}

// NewTransfer creates a new transfer. The source and destination must
// already be initialized; Run drives them to completion.
func NewTransfer(source core.Source, destination core.Destination, cfg *TransferConfig, logger *zap.Logger) *Transfer {
	if cfg == nil {
		cfg = DefaultTransferConfig()
	}

	return &Transfer{
		source:      source,
		destination: destination,
		batchSize:   cfg.BatchSize,
		logger:      logger,
	}
}

// Run executes the transfer to completion. The whole run, schema creation
// included, is one transaction: on success it commits once at the very
// end, on any failure it rolls back and the error is returned to the
// caller. Re-running after a full success with unchanged source data
// yields no observable row differences.
func (t *Transfer) Run(ctx context.Context) error {
	t.startTime = time.Now()
	t.logger.Info("starting transfer", zap.Int("batch_size", t.batchSize))

	tx, err := t.destination.BeginTransaction(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin sink transaction")
	}

	if err := t.run(ctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			t.logger.Error("rollback failed", zap.Error(rbErr))
		}
		t.logger.Error("transfer failed, sink rolled back",
			zap.Int64("rows_seen", t.rowsTransferred),
			zap.Error(err))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to commit sink transaction")
	}

	duration := time.Since(t.startTime)
	t.logger.Info("transfer completed",
		zap.Int64("rows_transferred", t.rowsTransferred),
		zap.Int64("batches_flushed", t.batchesFlushed),
		zap.Duration("duration", duration))

	return nil
}

// run performs the schema-ready and streaming stages inside the open
// transaction.
func (t *Transfer) run(ctx context.Context) error {
	if err := t.destination.EnsureSchema(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to ensure sink schema")
	}

	cursor, err := t.source.Read(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to read from source")
	}

	batch := make([]*models.Kbar, 0, t.batchSize)

	for {
		row, err := cursor.Next(ctx)
		if err == core.Done {
			break
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "source cursor error")
		}

		record, err := models.FromRow(row)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to transform row")
		}

		batch = append(batch, record)
		if len(batch) >= t.batchSize {
			if err := t.flush(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	// Final partial batch
	if err := t.flush(ctx, batch); err != nil {
		return err
	}

	return nil
}

// flush applies one batch to the sink and reports progress.
func (t *Transfer) flush(ctx context.Context, batch []*models.Kbar) error {
	if len(batch) == 0 {
		return nil
	}

	if err := t.destination.UpsertBatch(ctx, batch); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to upsert batch")
	}

	t.rowsTransferred += int64(len(batch))
	t.batchesFlushed++

	t.logger.Info("progress",
		zap.Int64("rows_transferred", t.rowsTransferred),
		zap.Int64("batches_flushed", t.batchesFlushed))

	return nil
}

// Metrics returns transfer metrics
func (t *Transfer) Metrics() map[string]interface{} {
	duration := time.Since(t.startTime)
	throughput := 0.0
	if duration > 0 {
		throughput = float64(t.rowsTransferred) / duration.Seconds()
	}

	return map[string]interface{}{
		"rows_transferred": t.rowsTransferred,
		"batches_flushed":  t.batchesFlushed,
		"duration":         duration.String(),
		"throughput_rps":   throughput,
		"batch_size":       t.batchSize,
	}
}
