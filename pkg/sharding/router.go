// Package sharding routes connections to the shards of a Vertica cluster and
// fans statements out across them.
//
// A Router keeps one physical connection per shard it has visited and an
// explicit active shard id. Switching shards never closes a connection, so
// returning to a shard reuses the cached one. A Manager drives a Router to
// run statements and schema migrations on every shard in turn.
//
// Neither type is safe for concurrent use. Callers that want parallelism
// give each goroutine its own Router.
package sharding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/driver"
	"github.com/leapstack-labs/leapvertica/pkg/schema"
)

// Connector opens a connection with one shard's parameters. *driver.Driver
// implements it.
type Connector interface {
	Connect(ctx context.Context, p core.ShardParams) (*driver.Conn, error)
}

var _ Connector = (*driver.Driver)(nil)

// PostConnectFunc is called after a new physical connection to a shard is
// opened and made active.
type PostConnectFunc func(ctx context.Context, r *Router, shardID int) error

// Router is a sharded connection. Statement methods run on the active shard.
type Router struct {
	connector Connector
	logger    *slog.Logger

	global   core.ShardParams
	shards   []core.ShardParams
	index    map[int]int
	defaults map[string]string

	conns   map[int]*driver.Conn
	schemas map[int]*schema.Manager
	active  int

	postConnect []PostConnectFunc
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// OnPostConnect registers fn to run after every new physical connection.
func OnPostConnect(fn PostConnectFunc) RouterOption {
	return func(r *Router) { r.OnPostConnect(fn) }
}

// NewRouter validates the shards of cfg and returns a router with no
// active shard. Nothing is connected until ConnectShard.
func NewRouter(c Connector, cfg core.ConnectionConfig, opts ...RouterOption) (*Router, error) {
	shards, err := ParseShards(cfg)
	if err != nil {
		return nil, err
	}
	global, err := GlobalParams(cfg)
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("global: %v", err)}
	}

	r := &Router{
		connector: c,
		logger:    slog.New(slog.DiscardHandler),
		global:    global,
		shards:    shards,
		index:     make(map[int]int, len(shards)),
		defaults:  cfg.DefaultTableOptions,
		conns:     make(map[int]*driver.Conn),
		schemas:   make(map[int]*schema.Manager),
	}
	for i, s := range shards {
		r.index[s.ID] = i
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// OnPostConnect registers fn to run after every new physical connection.
func (r *Router) OnPostConnect(fn PostConnectFunc) {
	r.postConnect = append(r.postConnect, fn)
}

// Connect reports false when a shard is already active. Before any shard
// has been selected it fails with ErrNoShardSelected.
func (r *Router) Connect(context.Context) (bool, error) {
	if r.Active() != nil {
		return false, nil
	}
	return false, ErrNoShardSelected
}

// ConnectShard makes id the active shard. It returns true only when a new
// physical connection was opened; reselecting the active shard or switching
// to a cached one returns false. Switching is refused while the active
// connection has an open transaction.
func (r *Router) ConnectShard(ctx context.Context, id int) (bool, error) {
	if r.active != 0 && id == r.active {
		return false, nil
	}
	if conn := r.Active(); conn != nil && conn.InTransaction() {
		return false, ErrShardSwitchInTransaction
	}
	p, ok := r.Params(id)
	if !ok {
		return false, unknownShard(id)
	}

	if conn, ok := r.conns[id]; ok {
		r.logger.Debug("switched shard", "shard", id, "conn", conn.ID())
		r.active = id
		return false, nil
	}

	conn, err := r.connector.Connect(ctx, p)
	if err != nil {
		return false, fmt.Errorf("failed to connect to shard %d: %w", id, err)
	}
	r.conns[id] = conn
	r.active = id
	r.logger.Debug("connected shard", "shard", id, "conn", conn.ID(), "host", p.Host)

	for _, fn := range r.postConnect {
		if err := fn(ctx, r, id); err != nil {
			return true, fmt.Errorf("post-connect on shard %d: %w", id, err)
		}
	}
	return true, nil
}

// Active returns the active connection, or nil before the first connect.
func (r *Router) Active() *driver.Conn {
	if r.active == 0 {
		return nil
	}
	return r.conns[r.active]
}

// ActiveShardID returns the active shard id, or 0 when none is active.
func (r *Router) ActiveShardID() int { return r.active }

func (r *Router) conn() (*driver.Conn, error) {
	if c := r.Active(); c != nil {
		return c, nil
	}
	return nil, ErrNoShardSelected
}

// Shards returns the shard records in configuration order.
func (r *Router) Shards() []core.ShardParams {
	return slices.Clone(r.shards)
}

// Params returns the merged record of shard id.
func (r *Router) Params(id int) (core.ShardParams, bool) {
	i, ok := r.index[id]
	if !ok {
		return core.ShardParams{}, false
	}
	return r.shards[i], true
}

// params returns the active shard's record, or the global template before
// any shard was selected.
func (r *Router) params() core.ShardParams {
	if p, ok := r.Params(r.active); ok {
		return p
	}
	return r.global
}

// Host returns the active shard's configured host.
func (r *Router) Host() string { return r.params().Host }

// Port returns the active shard's configured port.
func (r *Router) Port() int { return r.params().Port }

// Username returns the active shard's configured user.
func (r *Router) Username() string { return r.params().User }

// Password returns the active shard's configured password.
func (r *Router) Password() string { return r.params().Password }

// Database returns the active shard's configured database name.
func (r *Router) Database() string { return r.params().DBName }

// IsConnected reports whether a shard is active.
func (r *Router) IsConnected() bool { return r.Active() != nil }

// IsShardConnected reports whether a connection to shard id is cached.
func (r *Router) IsShardConnected(id int) bool {
	_, ok := r.conns[id]
	return ok
}

// SchemaManager returns the catalog manager of the active shard. Managers
// live as long as their cached connection.
func (r *Router) SchemaManager() (*schema.Manager, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}
	if m, ok := r.schemas[r.active]; ok {
		return m, nil
	}
	m := schema.NewManager(conn, r.Username(),
		schema.WithLogger(r.logger.With("shard", r.active)),
		schema.WithDefaultTableOptions(schema.TableOptions(r.defaults)),
	)
	r.schemas[r.active] = m
	return m, nil
}

// Close closes every cached connection and forgets the active shard.
func (r *Router) Close() error {
	var errs []error
	for _, s := range r.shards {
		conn, ok := r.conns[s.ID]
		if !ok {
			continue
		}
		if err := conn.Close(); err != nil {
			r.logger.Warn("failed to close shard connection", "shard", s.ID, "error", err)
			errs = append(errs, fmt.Errorf("shard %d: %w", s.ID, err))
		}
	}
	clear(r.conns)
	clear(r.schemas)
	r.active = 0
	return errors.Join(errs...)
}

// Prepare prepares query on the active shard.
func (r *Router) Prepare(query string) (*driver.Statement, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}
	return conn.Prepare(query)
}

// Query runs query on the active shard.
func (r *Router) Query(ctx context.Context, query string, args ...any) (*driver.Statement, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}
	return conn.Query(ctx, query, args...)
}

// Exec runs query on the active shard and returns the affected row count.
func (r *Router) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}
	return conn.Exec(ctx, query, args...)
}

// FetchAll runs query on the active shard and returns every row.
func (r *Router) FetchAll(ctx context.Context, query string, mode driver.FetchMode, args ...any) ([]driver.Row, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}
	return conn.FetchAll(ctx, query, mode, args...)
}

// FetchColumn runs query on the active shard and returns one column of the
// first row.
func (r *Router) FetchColumn(ctx context.Context, query string, index int, args ...any) (any, bool, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, false, err
	}
	return conn.FetchColumn(ctx, query, index, args...)
}

// BeginTransaction starts a transaction on the active shard.
func (r *Router) BeginTransaction(ctx context.Context) error {
	conn, err := r.conn()
	if err != nil {
		return err
	}
	return conn.BeginTransaction(ctx)
}

// Commit commits the active shard's transaction.
func (r *Router) Commit(ctx context.Context) error {
	conn, err := r.conn()
	if err != nil {
		return err
	}
	return conn.Commit(ctx)
}

// Rollback rolls back the active shard's transaction.
func (r *Router) Rollback(ctx context.Context) error {
	conn, err := r.conn()
	if err != nil {
		return err
	}
	return conn.Rollback(ctx)
}

// InTransaction reports whether the active shard has an open transaction.
func (r *Router) InTransaction() bool {
	conn := r.Active()
	return conn != nil && conn.InTransaction()
}

// LastInsertID returns the last identity value of the active shard's session.
func (r *Router) LastInsertID(ctx context.Context) (int64, error) {
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}
	return conn.LastInsertID(ctx)
}
