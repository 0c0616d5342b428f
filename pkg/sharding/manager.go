package sharding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/driver"
	"github.com/leapstack-labs/leapvertica/pkg/schema"
)

// Entity is anything that knows the shard it lives on.
type Entity interface {
	ShardID() int
}

// SchemaUpdate is the migration computed for one schema of one shard.
type SchemaUpdate struct {
	ShardID int
	Schema  string
	SQL     []string
}

// Manager runs statements and migrations across every shard of a Router.
// Fan-out visits shards in configuration order.
type Manager struct {
	router *Router
	policy Policy
	logger *slog.Logger

	currentSchema string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPolicy sets the allocation policy. Defaults to RandomPolicy.
func WithPolicy(p Policy) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager returns a manager driving r.
func NewManager(r *Router, opts ...ManagerOption) *Manager {
	m := &Manager{
		router: r,
		policy: RandomPolicy{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Router returns the router the manager drives.
func (m *Manager) Router() *Router { return m.router }

// Shards returns the configured shard ids in order.
func (m *Manager) Shards() []int {
	shards := m.router.Shards()
	ids := make([]int, len(shards))
	for i, s := range shards {
		ids[i] = s.ID
	}
	return ids
}

func (m *Manager) requireShards() ([]int, error) {
	ids := m.Shards()
	if len(ids) == 0 {
		return nil, ErrNoShards
	}
	return ids, nil
}

// SelectShardByID makes id the active shard. It reports whether a new
// physical connection was opened.
func (m *Manager) SelectShardByID(ctx context.Context, id int) (bool, error) {
	return m.router.ConnectShard(ctx, id)
}

// SelectShardByEntity makes the entity's shard active.
func (m *Manager) SelectShardByEntity(ctx context.Context, e Entity) (bool, error) {
	return m.router.ConnectShard(ctx, e.ShardID())
}

// SelectShardByName activates shard connID and points its search path at
// the schema name.
func (m *Manager) SelectShardByName(ctx context.Context, name string, connID int) error {
	if _, err := m.router.ConnectShard(ctx, connID); err != nil {
		return err
	}
	if err := m.SetSchema(ctx, name); err != nil {
		return err
	}
	m.currentSchema = name
	return nil
}

// CurrentSchema returns the schema last selected by SelectShardByName.
func (m *Manager) CurrentSchema() string { return m.currentSchema }

// SetSchema sets the active shard's search path to name.
func (m *Manager) SetSchema(ctx context.Context, name string) error {
	sm, err := m.router.SchemaManager()
	if err != nil {
		return err
	}
	return sm.SetSearchPath(ctx, name)
}

// SchemaNames lists the active shard's schemas starting with prefix.
func (m *Manager) SchemaNames(ctx context.Context, prefix string) ([]string, error) {
	sm, err := m.router.SchemaManager()
	if err != nil {
		return nil, err
	}
	return sm.SchemaNames(ctx, prefix)
}

// QueryAll runs query in every schema of every shard and concatenates the
// rows: shard by shard, schema by schema within a shard, in backend order
// within a schema.
func (m *Manager) QueryAll(ctx context.Context, query string, args ...any) ([]driver.Row, error) {
	ids, err := m.requireShards()
	if err != nil {
		return nil, err
	}

	var rows []driver.Row
	for _, id := range ids {
		if _, err := m.router.ConnectShard(ctx, id); err != nil {
			return nil, err
		}
		schemas, err := m.SchemaNames(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("shard %d: %w", id, err)
		}
		for _, s := range schemas {
			if err := m.SetSchema(ctx, s); err != nil {
				return nil, fmt.Errorf("shard %d: %w", id, err)
			}
			got, err := m.router.FetchAll(ctx, query, driver.FetchAssoc, args...)
			if err != nil {
				return nil, fmt.Errorf("shard %d schema %s: %w", id, s, err)
			}
			m.logger.Debug("queried shard", "shard", id, "schema", s, "rows", len(got))
			rows = append(rows, got...)
		}
	}
	return rows, nil
}

// ExecuteAll runs query once on every shard and returns the affected row
// count per shard.
func (m *Manager) ExecuteAll(ctx context.Context, query string, args ...any) (map[int]int64, error) {
	ids, err := m.requireShards()
	if err != nil {
		return nil, err
	}

	affected := make(map[int]int64, len(ids))
	for _, id := range ids {
		if _, err := m.SelectShardByID(ctx, id); err != nil {
			return affected, err
		}
		n, err := m.router.Exec(ctx, query, args...)
		if err != nil {
			return affected, fmt.Errorf("shard %d: %w", id, err)
		}
		affected[id] = n
	}
	return affected, nil
}

// UpdateSchemaSQL diffs the active session's schema against target.
// saveMode leaves out drops.
func (m *Manager) UpdateSchemaSQL(ctx context.Context, target *schema.Schema, saveMode bool) ([]string, error) {
	sm, err := m.router.SchemaManager()
	if err != nil {
		return nil, err
	}
	return sm.UpdateSchemaSQL(ctx, target, saveMode)
}

// UpdateCurrentSchema migrates the active session's schema. In saveMode the
// drop-free statements are executed; otherwise the full migration is only
// returned.
func (m *Manager) UpdateCurrentSchema(ctx context.Context, target *schema.Schema, saveMode bool) ([]string, error) {
	if _, err := m.requireShards(); err != nil {
		return nil, err
	}
	sql, err := m.UpdateSchemaSQL(ctx, target, saveMode)
	if err != nil {
		return nil, err
	}
	if saveMode {
		if err := m.apply(ctx, sql); err != nil {
			return sql, err
		}
	}
	return sql, nil
}

// UpdateSchema migrates every schema starting with prefix on every shard.
// In saveMode the drop-free statements are executed; otherwise nothing is
// executed and the full migrations are returned.
func (m *Manager) UpdateSchema(ctx context.Context, target *schema.Schema, saveMode bool, prefix string) ([]SchemaUpdate, error) {
	ids, err := m.requireShards()
	if err != nil {
		return nil, err
	}

	var updates []SchemaUpdate
	for _, id := range ids {
		if _, err := m.SelectShardByID(ctx, id); err != nil {
			return updates, err
		}
		names, err := m.SchemaNames(ctx, prefix)
		if err != nil {
			return updates, fmt.Errorf("shard %d: %w", id, err)
		}
		for _, name := range names {
			if err := m.SetSchema(ctx, name); err != nil {
				return updates, fmt.Errorf("shard %d: %w", id, err)
			}
			sql, err := m.UpdateSchemaSQL(ctx, target, saveMode)
			if err != nil {
				return updates, fmt.Errorf("shard %d schema %s: %w", id, name, err)
			}
			updates = append(updates, SchemaUpdate{ShardID: id, Schema: name, SQL: sql})
			if saveMode {
				if err := m.apply(ctx, sql); err != nil {
					return updates, fmt.Errorf("shard %d schema %s: %w", id, name, err)
				}
			}
			m.logger.Debug("schema updated", "shard", id, "schema", name, "statements", len(sql), "applied", saveMode)
		}
	}
	return updates, nil
}

func (m *Manager) apply(ctx context.Context, sql []string) error {
	for _, stmt := range sql {
		if stmt == "" {
			continue
		}
		if _, err := m.router.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// AllocateShardID returns the shard new data should be placed on, chosen
// by the manager's policy. The default policy is uniformly random.
func (m *Manager) AllocateShardID() (int, error) {
	return m.AllocateShardIDFor("")
}

// AllocateShardIDFor is AllocateShardID for a keyed entity.
func (m *Manager) AllocateShardIDFor(key string) (int, error) {
	ids, err := m.requireShards()
	if err != nil {
		return 0, err
	}
	return m.policy.Allocate(ids, key), nil
}

// ConnectionShardQuery returns the CONNECT TO VERTICA statement that links
// a session to shard id.
func (m *Manager) ConnectionShardQuery(id int) (string, error) {
	p, ok := m.router.Params(id)
	if !ok {
		return "", unknownShard(id)
	}
	return vertica.ConnectToSQL(p), nil
}

// DatabaseNameForShardID returns the configured database name of shard id.
func (m *Manager) DatabaseNameForShardID(id int) (string, error) {
	p, ok := m.router.Params(id)
	if !ok {
		return "", unknownShard(id)
	}
	return p.DBName, nil
}
