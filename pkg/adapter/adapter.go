// Package adapter provides the database adapter contract for leapvertica.
//
// This package contains the public contract that database adapters implement.
// Concrete adapter implementations are in pkg/adapters/ subdirectories.
package adapter

import (
	"context"

	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialect"
	"github.com/leapstack-labs/leapvertica/pkg/driver"
	"github.com/leapstack-labs/leapvertica/pkg/sharding"
)

// Adapter defines the interface that all database adapters must implement.
// It provides methods for connecting to databases, executing SQL, and
// retrieving metadata. Statements run on the active shard.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg core.ConnectionConfig) error

	// Close closes every open connection and releases resources.
	Close() error

	// Exec executes a SQL statement and returns the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Query executes a SQL statement and returns its rows name-keyed.
	Query(ctx context.Context, sql string, args ...any) ([]driver.Row, error)

	// GetTableMetadata retrieves metadata for a specified table.
	GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error)

	// LoadCSV loads data from a CSV file into a table.
	// If the table doesn't exist, it will be created from the header row.
	LoadCSV(ctx context.Context, tableName string, filePath string) error

	// Dialect returns the SQL dialect configuration for this adapter.
	Dialect() *dialect.Dialect
}

// Sharded is implemented by adapters that expose their shard manager.
type Sharded interface {
	Manager() *sharding.Manager
}
