package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbarsync/pkg/config"
	"kbarsync/pkg/connector/core"
	"kbarsync/pkg/connector/destinations/sqlite"
	"kbarsync/pkg/models"
	"kbarsync/pkg/testutil"
)

// fakeSource serves a fixed slice of rows through a sequential cursor.
type fakeSource struct {
	rows []map[string]interface{}
}

func (s *fakeSource) Initialize(ctx context.Context, cfg *config.Config) error { return nil }

func (s *fakeSource) Read(ctx context.Context) (core.RowCursor, error) {
	return &fakeCursor{rows: s.rows}, nil
}

func (s *fakeSource) Close(ctx context.Context) error  { return nil }
func (s *fakeSource) Health(ctx context.Context) error { return nil }
func (s *fakeSource) Metrics() map[string]interface{}  { return nil }

type fakeCursor struct {
	rows []map[string]interface{}
	pos  int
}

func (c *fakeCursor) Next(ctx context.Context) (map[string]interface{}, error) {
	if c.pos >= len(c.rows) {
		return nil, core.Done
	}
	row := c.rows[c.pos]
	c.pos++
	return row, nil
}

// failingDestination wraps a real destination and fails the n-th upsert.
type failingDestination struct {
	core.Destination
	failOnBatch int
	batches     int
}

func (d *failingDestination) UpsertBatch(ctx context.Context, batch []*models.Kbar) error {
	d.batches++
	if d.batches == d.failOnBatch {
		return fmt.Errorf("injected batch failure")
	}
	return d.Destination.UpsertBatch(ctx, batch)
}

func sourceRow(code string, day int, closePrice float64) map[string]interface{} {
	return map[string]interface{}{
		models.ColumnTs:        time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		models.ColumnStockCode: code,
		models.ColumnOpen:      100.0,
		models.ColumnHigh:      102.0,
		models.ColumnLow:       99.0,
		models.ColumnClose:     closePrice,
		models.ColumnVolume:    int64(1200),
	}
}

func makeRows(n int) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, sourceRow(fmt.Sprintf("%04d", i), 15, 100.0+float64(i)))
	}
	return rows
}

func openSQLite(t *testing.T) *sqlite.SQLiteDestination {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Sink.Path = filepath.Join(t.TempDir(), "daily_kbars.db")

	dest, err := sqlite.NewSQLiteDestination("sqlite", cfg)
	require.NoError(t, err)

	d := dest.(*sqlite.SQLiteDestination)
	require.NoError(t, d.Initialize(context.Background(), cfg))
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	return d
}

func countRows(t *testing.T, d *sqlite.SQLiteDestination) int {
	t.Helper()

	var count int
	err := d.DB().QueryRow("SELECT COUNT(*) FROM " + sqlite.TableName).Scan(&count)
	if err != nil {
		// Table absent counts as an empty, untouched sink
		return 0
	}
	return count
}

func TestTransferPartialBatchFlush(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	// 25 rows with batch size 10 leaves a final partial batch of 5
	dest := openSQLite(t)
	transfer := NewTransfer(&fakeSource{rows: makeRows(25)}, dest, &TransferConfig{BatchSize: 10}, testutil.TestLogger(t))

	require.NoError(t, transfer.Run(ctx))

	assert.Equal(t, 25, countRows(t, dest))
	assert.Equal(t, int64(25), transfer.Metrics()["rows_transferred"])
	assert.Equal(t, int64(3), transfer.Metrics()["batches_flushed"])
}

func TestTransferIdempotent(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	dest := openSQLite(t)
	rows := makeRows(7)

	first := NewTransfer(&fakeSource{rows: rows}, dest, &TransferConfig{BatchSize: 3}, testutil.TestLogger(t))
	require.NoError(t, first.Run(ctx))
	require.Equal(t, 7, countRows(t, dest))

	// Re-running against unchanged source data must not duplicate rows
	second := NewTransfer(&fakeSource{rows: rows}, dest, &TransferConfig{BatchSize: 3}, testutil.TestLogger(t))
	require.NoError(t, second.Run(ctx))
	assert.Equal(t, 7, countRows(t, dest))
}

func TestTransferDuplicateKeyLaterRowWins(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	dest := openSQLite(t)
	rows := []map[string]interface{}{
		sourceRow("2330", 15, 101.0),
		sourceRow("2330", 15, 105.0),
	}

	transfer := NewTransfer(&fakeSource{rows: rows}, dest, &TransferConfig{BatchSize: 10}, testutil.TestLogger(t))
	require.NoError(t, transfer.Run(ctx))

	assert.Equal(t, 1, countRows(t, dest))

	var closePrice float64
	require.NoError(t, dest.DB().QueryRow("SELECT Close FROM "+sqlite.TableName).Scan(&closePrice))
	assert.Equal(t, 105.0, closePrice)
}

func TestTransferRollbackOnLastBatchFailure(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	dest := openSQLite(t)
	// 20 rows, batch size 10: fail the second (last) batch
	failing := &failingDestination{Destination: dest, failOnBatch: 2}

	transfer := NewTransfer(&fakeSource{rows: makeRows(20)}, failing, &TransferConfig{BatchSize: 10}, testutil.TestLogger(t))
	err := transfer.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injected batch failure")

	// Nothing from this run is visible, including the first flushed batch
	assert.Equal(t, 0, countRows(t, dest))
}

func TestTransferRollbackOnBadRow(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	dest := openSQLite(t)
	rows := makeRows(5)
	rows[3][models.ColumnVolume] = "not-a-number"

	transfer := NewTransfer(&fakeSource{rows: rows}, dest, &TransferConfig{BatchSize: 2}, testutil.TestLogger(t))
	require.Error(t, transfer.Run(ctx))

	assert.Equal(t, 0, countRows(t, dest))
}

func TestTransferEmptySource(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	dest := openSQLite(t)
	transfer := NewTransfer(&fakeSource{}, dest, &TransferConfig{BatchSize: 10}, testutil.TestLogger(t))

	require.NoError(t, transfer.Run(ctx))
	assert.Equal(t, 0, countRows(t, dest))
	assert.Equal(t, int64(0), transfer.Metrics()["rows_transferred"])
}

func TestDefaultTransferConfig(t *testing.T) {
	cfg := DefaultTransferConfig()
	assert.Equal(t, 1000, cfg.BatchSize)
}
