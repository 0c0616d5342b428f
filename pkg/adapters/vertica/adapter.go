package vertica

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapvertica/pkg/adapter"
	"github.com/leapstack-labs/leapvertica/pkg/backend"
	"github.com/leapstack-labs/leapvertica/pkg/backend/sqlbackend"
	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialect"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/driver"
	"github.com/leapstack-labs/leapvertica/pkg/sharding"
)

// Name is the registered adapter type.
const Name = vertica.Name

// Allocation policies accepted in ConnectionConfig.Allocation.
const (
	AllocationRandom = "random"
	AllocationHash   = "hash"
)

// Adapter implements the adapter.Adapter interface for Vertica. Every
// configuration is routed through a shard router; a config without shards
// is treated as a single shard with id 1.
type Adapter struct {
	adapter.BaseAdapter

	backend backend.Backend
	owned   *sqlbackend.Backend
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBackend makes the adapter connect through b instead of opening a
// database/sql transport.
func WithBackend(b backend.Backend) Option {
	return func(a *Adapter) { a.backend = b }
}

// New creates a new Vertica adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Adapter{BaseAdapter: adapter.BaseAdapter{Logger: logger}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return vertica.Name
}

// Dialect returns the Vertica dialect.
func (a *Adapter) Dialect() *dialect.Dialect {
	return vertica.Vertica
}

// Connect validates the shard configuration and connects to the first
// shard. An already open adapter is closed first.
func (a *Adapter) Connect(ctx context.Context, cfg core.ConnectionConfig) error {
	if a.Router != nil {
		if err := a.Close(); err != nil {
			a.Logger.Warn("failed to close previous connection", "error", err)
		}
	}

	policy, err := allocationPolicy(cfg.Allocation)
	if err != nil {
		return err
	}

	b := a.backend
	if b == nil {
		a.owned = sqlbackend.New(transport(cfg),
			sqlbackend.WithPersistent(cfg.Persistent),
			sqlbackend.WithLogger(a.Logger),
		)
		b = a.owned
	}
	drv := driver.New(b, driver.WithLogger(a.Logger), driver.WithTransport(transport(cfg)))

	r, err := sharding.NewRouter(drv, SingleShard(cfg), sharding.WithLogger(a.Logger))
	if err != nil {
		return err
	}

	first := r.Shards()[0]
	a.Logger.Debug("connecting to vertica", slog.Int("shard", first.ID), slog.String("host", first.Host), slog.String("database", first.DBName))
	if _, err := r.ConnectShard(ctx, first.ID); err != nil {
		_ = r.Close()
		return fmt.Errorf("failed to connect to shard %d: %w", first.ID, err)
	}

	a.Router = r
	a.Shards = sharding.NewManager(r, sharding.WithPolicy(policy), sharding.WithManagerLogger(a.Logger))
	a.Cfg = cfg
	return nil
}

// Close closes every shard connection and any connection pools the
// adapter opened.
func (a *Adapter) Close() error {
	err := a.BaseAdapter.Close()
	if a.owned != nil {
		err = errors.Join(err, a.owned.Shutdown())
		a.owned = nil
	}
	return err
}

// SingleShard returns cfg unchanged when it declares shards. Otherwise the
// top-level connection fields become shard 1.
func SingleShard(cfg core.ConnectionConfig) core.ConnectionConfig {
	if cfg.IsSharded() {
		return cfg
	}
	cfg.Shards = []map[string]any{{"id": 1}}
	return cfg
}

func transport(cfg core.ConnectionConfig) string {
	if cfg.Transport == "" {
		return core.TransportODBC
	}
	return cfg.Transport
}

func allocationPolicy(name string) (sharding.Policy, error) {
	switch strings.ToLower(name) {
	case "", AllocationRandom:
		return sharding.RandomPolicy{}, nil
	case AllocationHash:
		return &sharding.HashRingPolicy{}, nil
	default:
		return nil, &sharding.ConfigError{Message: fmt.Sprintf("unknown allocation policy %q", name)}
	}
}

// GetTableMetadata retrieves metadata for a specified table on the active
// shard. Unqualified names resolve to the public schema.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error) {
	return a.GetTableMetadataCommon(ctx, table, vertica.Vertica)
}

// LoadCSV loads a CSV file with a header row into a table on the active
// shard using COPY FROM LOCAL. A missing table is created with one
// nullable VARCHAR column per header field.
func (a *Adapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if a.Router == nil {
		return adapter.ErrNotConnected
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	file, err := os.Open(absPath) //nolint:gosec // absPath is derived from user-provided filePath, which is expected
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	headers, err := csv.NewReader(file).Read()
	_ = file.Close()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	if err := a.ensureTable(ctx, tableName, headers); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	copySQL := vertica.CopyFromLocalSQL(tableName, absPath, vertica.CopyOptions{
		Delimiter:  ",",
		Enclosure:  `"`,
		SkipHeader: true,
		Direct:     true,
	})
	if _, err := a.Exec(ctx, copySQL); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}
	return nil
}

// LoadRows bulk loads rows into an existing table. The rows are staged in a
// temporary tab-separated file and copied with COPY FROM LOCAL; nil values
// load as NULL. It returns the number of rows loaded.
func (a *Adapter) LoadRows(ctx context.Context, tableName string, rows [][]any) (int64, error) {
	if a.Router == nil {
		return 0, adapter.ErrNotConnected
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tmp, err := os.CreateTemp("", "leapvertica-*.tsv")
	if err != nil {
		return 0, fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := writeRows(tmp, rows); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("failed to stage rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to stage rows: %w", err)
	}

	copySQL := vertica.CopyFromLocalSQL(tableName, tmp.Name(), vertica.CopyOptions{Delimiter: "\t", Direct: true})
	n, err := a.Exec(ctx, copySQL)
	if err != nil {
		return 0, fmt.Errorf("failed to load rows: %w", err)
	}
	a.Logger.Debug("rows loaded", "table", tableName, "rows", n)
	return n, nil
}

func writeRows(w io.Writer, rows [][]any) error {
	for _, row := range rows {
		if _, err := driver.WriteTSV(w, row); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) ensureTable(ctx context.Context, tableName string, headers []string) error {
	sm, err := a.Router.SchemaManager()
	if err != nil {
		return err
	}
	schemaName, name := vertica.Vertica.SplitQualified(tableName)
	existing, err := sm.ListColumns(ctx, schemaName, name)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	columns := make([]core.Column, len(headers))
	for i, h := range headers {
		columns[i] = core.Column{
			Name:     sanitizeIdentifier(h),
			Type:     "varchar",
			Length:   vertica.VarcharMaxLength,
			Nullable: true,
			Position: i + 1,
		}
	}
	for _, stmt := range vertica.CreateTableSQL(tableName, columns, vertica.TableOptions{}) {
		if _, err := a.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	a.Logger.Debug("created table from CSV header", "table", tableName, "columns", len(columns))
	return nil
}

// sanitizeIdentifier makes a header field usable as a column name.
func sanitizeIdentifier(name string) string {
	safe := strings.TrimSpace(name)
	safe = strings.ReplaceAll(safe, " ", "_")
	return strings.ReplaceAll(safe, "-", "_")
}

// Ensure Adapter implements the adapter interfaces.
var (
	_ adapter.Adapter = (*Adapter)(nil)
	_ adapter.Sharded = (*Adapter)(nil)
)
