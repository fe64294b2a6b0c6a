// Package core defines the connector contracts for kbarsync: a read-only
// row source, an upsert destination with run-scoped transactions, and the
// cursor the transfer loop drains. Connectors are constructed through the
// registry and configured with the unified config.Config.
package core

import (
	"context"
	"errors"

	"kbarsync/pkg/config"
	"kbarsync/pkg/models"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Done is returned by RowCursor.Next when the source sequence is exhausted.
var Done = errors.New("no more rows")

// RowCursor is a sequential, order-preserving cursor over source rows.
// Next returns Done after the final row. A cursor is bound to a single run
// and is not safe for concurrent use.
type RowCursor interface {
	Next(ctx context.Context) (map[string]interface{}, error)
}

// Transaction represents a sink transaction scoped to one transfer run.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Source is the interface all source connectors implement.
type Source interface {
	// Initialize establishes the session against the remote store
	Initialize(ctx context.Context, cfg *config.Config) error
	// Read submits the snapshot query and exposes the result as a cursor
	Read(ctx context.Context) (RowCursor, error)
	// Close releases the session
	Close(ctx context.Context) error

	// Health and metrics
	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// Destination is the interface all destination connectors implement.
// EnsureSchema and UpsertBatch operate on the transaction opened by
// BeginTransaction; nothing becomes visible until it commits.
type Destination interface {
	// Initialize opens the sink, creating the backing file if absent
	Initialize(ctx context.Context, cfg *config.Config) error
	// BeginTransaction starts the run transaction
	BeginTransaction(ctx context.Context) (Transaction, error)
	// EnsureSchema creates the destination table if it does not exist
	EnsureSchema(ctx context.Context) error
	// UpsertBatch applies one batch with insert-or-replace semantics
	UpsertBatch(ctx context.Context, batch []*models.Kbar) error
	// Close releases the sink connection
	Close(ctx context.Context) error

	// Health and metrics
	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// Connector is the base interface for all connectors
type Connector interface {
	Name() string
	Type() ConnectorType
	Version() string
}
