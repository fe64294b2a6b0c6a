// Package sqlite implements the SQLite destination connector. The sink is
// a single local database file holding the daily_kbars table, keyed by
// (ts, stock_code). All writes for one run ride on one transaction opened
// through BeginTransaction; nothing is visible until it commits, and the
// table is never dropped or truncated.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"kbarsync/pkg/config"
	"kbarsync/pkg/connector/core"
	"kbarsync/pkg/errors"
	"kbarsync/pkg/logger"
	"kbarsync/pkg/models"
)

// TableName is the destination table for kbar records.
const TableName = "daily_kbars"

const createTableSQL = `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	ts TEXT NOT NULL,
	stock_code TEXT NOT NULL,
	Open REAL NOT NULL,
	High REAL NOT NULL,
	Low REAL NOT NULL,
	Close REAL NOT NULL,
	Volume INTEGER NOT NULL,
	PRIMARY KEY (ts, stock_code)
)`

// SQLiteDestination writes kbar records to a local SQLite file.
type SQLiteDestination struct {
	name string
	path string

	db *sql.DB
	tx *sql.Tx

	logger *zap.Logger

	recordsWritten int64
	batchesFlushed int64
}

// NewSQLiteDestination creates a new SQLite destination connector
func NewSQLiteDestination(name string, cfg *config.Config) (core.Destination, error) {
	return &SQLiteDestination{
		name:   name,
		path:   cfg.Sink.Path,
		logger: logger.Get().With(zap.String("connector", name)),
	}, nil
}

// Name returns the connector name
func (d *SQLiteDestination) Name() string { return d.name }

// Type returns the connector type
func (d *SQLiteDestination) Type() core.ConnectorType { return core.ConnectorTypeDestination }

// Version returns the connector version
func (d *SQLiteDestination) Version() string { return "1.0.0" }

// Initialize opens the database file, creating it if absent.
func (d *SQLiteDestination) Initialize(ctx context.Context, cfg *config.Config) error {
	if d.path == "" {
		return errors.New(errors.ErrorTypeConfig, "sink path is required")
	}

	db, err := sql.Open("sqlite3", d.path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open SQLite database")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to ping SQLite database")
	}

	d.db = db

	d.logger.Info("SQLite destination initialized", zap.String("path", d.path))
	return nil
}

// BeginTransaction starts the run transaction. Exactly one transaction is
// active at a time; EnsureSchema and UpsertBatch operate on it.
func (d *SQLiteDestination) BeginTransaction(ctx context.Context) (core.Transaction, error) {
	if d.db == nil {
		return nil, errors.New(errors.ErrorTypeConnection, "destination not initialized")
	}
	if d.tx != nil {
		return nil, errors.New(errors.ErrorTypeValidation, "a transaction is already active")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}

	d.tx = tx
	return &sqliteTransaction{dest: d, tx: tx}, nil
}

// EnsureSchema creates the daily_kbars table if it does not exist. A
// repeated call is a no-op.
func (d *SQLiteDestination) EnsureSchema(ctx context.Context) error {
	execer := d.execer()
	if execer == nil {
		return errors.New(errors.ErrorTypeConnection, "destination not initialized")
	}

	if _, err := execer.ExecContext(ctx, createTableSQL); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to create table")
	}

	d.logger.Info("schema ready", zap.String("table", TableName))
	return nil
}

// UpsertBatch applies one batch with insert-or-replace semantics keyed on
// (ts, stock_code). The later-applied row wins for a duplicate key.
func (d *SQLiteDestination) UpsertBatch(ctx context.Context, batch []*models.Kbar) error {
	if len(batch) == 0 {
		return nil
	}

	execer := d.execer()
	if execer == nil {
		return errors.New(errors.ErrorTypeConnection, "destination not initialized")
	}

	stmt, err := execer.PrepareContext(ctx, upsertSQL())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to prepare upsert statement")
	}
	defer func() { _ = stmt.Close() }()

	for _, k := range batch {
		if _, err := stmt.ExecContext(ctx,
			k.TsString(), k.StockCode,
			k.Open, k.High, k.Low, k.Close, k.Volume,
		); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to upsert record").
				WithDetail("ts", k.TsString()).
				WithDetail("stock_code", k.StockCode)
		}
	}

	atomic.AddInt64(&d.recordsWritten, int64(len(batch)))
	atomic.AddInt64(&d.batchesFlushed, 1)

	d.logger.Debug("batch upserted",
		zap.Int("record_count", len(batch)),
		zap.Int64("total_records", atomic.LoadInt64(&d.recordsWritten)))

	return nil
}

// Close closes the database. An uncommitted transaction is rolled back
// first so a failed run leaves the sink untouched.
func (d *SQLiteDestination) Close(ctx context.Context) error {
	if d.tx != nil {
		if err := d.tx.Rollback(); err != nil && err != sql.ErrTxDone {
			d.logger.Warn("failed to roll back open transaction", zap.Error(err))
		}
		d.tx = nil
	}

	if d.db == nil {
		return nil
	}

	err := d.db.Close()
	d.db = nil

	d.logger.Info("SQLite destination closed",
		zap.Int64("total_records_written", atomic.LoadInt64(&d.recordsWritten)),
		zap.Int64("total_batches_flushed", atomic.LoadInt64(&d.batchesFlushed)))

	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close SQLite database")
	}
	return nil
}

// DB returns the underlying database handle.
func (d *SQLiteDestination) DB() *sql.DB {
	return d.db
}

// Health checks the health of the destination
func (d *SQLiteDestination) Health(ctx context.Context) error {
	if d.db == nil {
		return errors.New(errors.ErrorTypeConnection, "SQLite database not opened")
	}
	if err := d.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "SQLite ping failed")
	}
	return nil
}

// Metrics returns metrics for the destination
func (d *SQLiteDestination) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"type":            "sqlite",
		"path":            d.path,
		"records_written": atomic.LoadInt64(&d.recordsWritten),
		"batches_flushed": atomic.LoadInt64(&d.batchesFlushed),
	}
}

// execContexter is the surface shared by *sql.DB and *sql.Tx that the
// destination needs.
type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// execer returns the active transaction when one is open, else the bare
// connection.
func (d *SQLiteDestination) execer() execContexter {
	if d.tx != nil {
		return d.tx
	}
	if d.db != nil {
		return d.db
	}
	return nil
}

func upsertSQL() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(models.Columns)), ", ")
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		TableName, strings.Join(models.Columns, ", "), placeholders)
}

// sqliteTransaction wraps *sql.Tx as a core.Transaction.
type sqliteTransaction struct {
	dest *SQLiteDestination
	tx   *sql.Tx
}

// Commit commits the run transaction
func (t *sqliteTransaction) Commit(ctx context.Context) error {
	defer t.release()
	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to commit transaction")
	}
	return nil
}

// Rollback discards all changes made during the run
func (t *sqliteTransaction) Rollback(ctx context.Context) error {
	defer t.release()
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to roll back transaction")
	}
	return nil
}

func (t *sqliteTransaction) release() {
	if t.dest.tx == t.tx {
		t.dest.tx = nil
	}
}
