package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialect"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/driver"
	"github.com/leapstack-labs/leapvertica/pkg/sharding"
)

// ErrNotConnected is returned by adapter methods called before Connect.
var ErrNotConnected = errors.New("database connection not established")

// BaseAdapter provides the shard-routed functionality adapters share.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, and Query implementations.
type BaseAdapter struct {
	Router *sharding.Router
	Shards *sharding.Manager
	Cfg    core.ConnectionConfig
	Logger *slog.Logger
}

// Close closes every shard connection.
func (b *BaseAdapter) Close() error {
	if b.Router == nil {
		return nil
	}
	if b.Logger != nil {
		b.Logger.Debug("closing shard connections")
	}
	err := b.Router.Close()
	b.Router = nil
	b.Shards = nil
	return err
}

// Exec executes a SQL statement on the active shard.
func (b *BaseAdapter) Exec(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	if b.Router == nil {
		return 0, ErrNotConnected
	}
	n, err := b.Router.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute SQL: %w", err)
	}
	return n, nil
}

// Query executes a SQL statement on the active shard.
func (b *BaseAdapter) Query(ctx context.Context, sqlStr string, args ...any) ([]driver.Row, error) {
	if b.Router == nil {
		return nil, ErrNotConnected
	}
	rows, err := b.Router.FetchAll(ctx, sqlStr, driver.FetchAssoc, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return rows, nil
}

// IsConnected returns true if a shard connection is active.
func (b *BaseAdapter) IsConnected() bool {
	return b.Router != nil && b.Router.IsConnected()
}

// Manager returns the shard manager, nil before Connect.
func (b *BaseAdapter) Manager() *sharding.Manager {
	return b.Shards
}

// GetTableMetadataCommon reads a table's columns from the catalog of the
// active shard and counts its rows. A failed count is not fatal.
func (b *BaseAdapter) GetTableMetadataCommon(ctx context.Context, table string, d *dialect.Dialect) (*core.TableMetadata, error) {
	if b.Router == nil {
		return nil, ErrNotConnected
	}
	sm, err := b.Router.SchemaManager()
	if err != nil {
		return nil, err
	}

	schema, tableName := d.SplitQualified(table)
	columns, err := sm.ListColumns(ctx, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	var rowCount int64
	if v, ok, err := b.Router.FetchColumn(ctx, vertica.CountRowsSQL(schema, tableName), 0); err == nil && ok {
		rowCount, _ = driver.ToInt64(v)
	} else if err != nil && b.Logger != nil {
		b.Logger.Warn("failed to count rows", "table", table, "error", err)
	}

	return &core.TableMetadata{
		Schema:   schema,
		Name:     tableName,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}
