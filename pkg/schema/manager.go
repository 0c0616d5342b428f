package schema

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/driver"
)

// Querier is the part of a connection the manager needs. *driver.Conn
// implements it.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	FetchAll(ctx context.Context, query string, mode driver.FetchMode, args ...any) ([]driver.Row, error)
	FetchColumn(ctx context.Context, query string, index int, args ...any) (any, bool, error)
}

var _ Querier = (*driver.Conn)(nil)

// Manager introspects the catalog of one connection.
//
// The search path entries that exist in the catalog are cached until the
// search path is changed through the manager.
type Manager struct {
	q        Querier
	user     string
	defaults vertica.TableOptions
	logger   *slog.Logger

	existing []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDefaultTableOptions sets the options applied to tables created by
// migrations from this manager.
func WithDefaultTableOptions(opts vertica.TableOptions) Option {
	return func(m *Manager) { m.defaults = opts }
}

// NewManager returns a manager for q. user replaces the "$user" entry of
// the search path.
func NewManager(q Querier, user string, opts ...Option) *Manager {
	m := &Manager{
		q:      q,
		user:   user,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SearchPaths returns the session search path in order.
func (m *Manager) SearchPaths(ctx context.Context) ([]string, error) {
	v, ok, err := m.q.FetchColumn(ctx, vertica.ShowSearchPathSQL, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read search path: %w", err)
	}
	if !ok || v == nil {
		return nil, nil
	}
	return vertica.ParseSearchPath(fmt.Sprint(v), m.user), nil
}

// ExistingSearchPaths returns the search path entries that name schemas
// present in the catalog.
func (m *Manager) ExistingSearchPaths(ctx context.Context) ([]string, error) {
	if m.existing == nil {
		if err := m.DetermineExistingSearchPaths(ctx); err != nil {
			return nil, err
		}
	}
	return m.existing, nil
}

// DetermineExistingSearchPaths refreshes the cached existing search paths.
func (m *Manager) DetermineExistingSearchPaths(ctx context.Context) error {
	names, err := m.Namespaces(ctx)
	if err != nil {
		return err
	}
	paths, err := m.SearchPaths(ctx)
	if err != nil {
		return err
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if slices.Contains(names, p) {
			existing = append(existing, p)
		}
	}
	m.existing = existing
	return nil
}

// Namespaces lists the schemas that hold at least one table, in catalog order.
func (m *Manager) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := m.q.FetchAll(ctx, vertica.ListNamespacesSQL, driver.FetchNum)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.At(0); ok && v != nil {
			names = append(names, fmt.Sprint(v))
		}
	}
	return names, nil
}

// SchemaNames lists the schemas whose name starts with prefix. An empty
// prefix lists every schema.
func (m *Manager) SchemaNames(ctx context.Context, prefix string) ([]string, error) {
	names, err := m.Namespaces(ctx)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		return names, nil
	}
	return slices.DeleteFunc(names, func(n string) bool { return !strings.HasPrefix(n, prefix) }), nil
}

// SetSearchPath replaces the session search path.
func (m *Manager) SetSearchPath(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return fmt.Errorf("%w: search path needs at least one schema", ErrInvalidSchema)
	}
	if _, err := m.q.Exec(ctx, vertica.SetSearchPathSQL(paths...)); err != nil {
		return fmt.Errorf("failed to set search path: %w", err)
	}
	m.existing = nil
	m.logger.Debug("search path set", "paths", paths)
	return nil
}

// ListTables lists the tables of schema by name.
func (m *Manager) ListTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := m.q.FetchAll(ctx, vertica.ListTablesInSchemaSQL(schema), driver.FetchAssoc)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Get("name"); ok && v != nil {
			names = append(names, fmt.Sprint(v))
		}
	}
	return names, nil
}

// ListColumns returns the columns of a table in ordinal order.
func (m *Manager) ListColumns(ctx context.Context, schema, table string) ([]core.Column, error) {
	rows, err := m.q.FetchAll(ctx, vertica.ListTableColumnsSQL(schema, table), driver.FetchAssoc)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s.%s: %w", schema, table, err)
	}
	cols := make([]core.Column, 0, len(rows))
	for i, r := range rows {
		cols = append(cols, columnFromRow(r.Assoc(), i+1))
	}
	return cols, nil
}

// CreateSchema introspects the first existing schema of the search path.
// A session without one yields an empty schema.
func (m *Manager) CreateSchema(ctx context.Context) (*Schema, error) {
	paths, err := m.ExistingSearchPaths(ctx)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return &Schema{}, nil
	}
	name := paths[0]

	tables, err := m.ListTables(ctx, name)
	if err != nil {
		return nil, err
	}
	s := &Schema{Name: name, Tables: make([]*Table, 0, len(tables))}
	for _, t := range tables {
		cols, err := m.ListColumns(ctx, name, t)
		if err != nil {
			return nil, err
		}
		s.Tables = append(s.Tables, &Table{Name: t, Columns: cols})
	}
	m.logger.Debug("schema introspected", "schema", name, "tables", len(s.Tables))
	return s, nil
}

// Compare diffs the live schema against target. Created tables get the
// manager's default table options.
func (m *Manager) Compare(ctx context.Context, target *Schema) (*Diff, error) {
	live, err := m.CreateSchema(ctx)
	if err != nil {
		return nil, err
	}
	d := Compare(live, target)
	d.Defaults = m.defaults
	return d, nil
}

// UpdateSchemaSQL returns the statements that migrate the live schema to
// target. saveMode leaves out drops.
func (m *Manager) UpdateSchemaSQL(ctx context.Context, target *Schema, saveMode bool) ([]string, error) {
	d, err := m.Compare(ctx, target)
	if err != nil {
		return nil, err
	}
	if saveMode {
		return d.ToSaveSQL(), nil
	}
	return d.ToSQL(), nil
}

// TableName returns table as it is addressed from the current session:
// bare for the first existing search path schema, qualified otherwise.
func (m *Manager) TableName(ctx context.Context, schema, table string) (string, error) {
	paths, err := m.ExistingSearchPaths(ctx)
	if err != nil {
		return "", err
	}
	if len(paths) > 0 && paths[0] == schema {
		return table, nil
	}
	return schema + "." + table, nil
}

var quotedDefault = regexp.MustCompile(`^'(.*)'(::.*)?$`)

func columnFromRow(row map[string]any, position int) core.Column {
	dataType := asString(row["data_type"])
	c := core.Column{
		Name:          asString(row["column_name"]),
		Type:          dataType,
		Length:        asInt(row["character_maximum_length"]),
		Precision:     asInt(row["numeric_precision"]),
		Scale:         asInt(row["numeric_scale"]),
		Nullable:      asBool(row["is_nullable"]),
		PrimaryKey:    asString(row["constraint_type"]) == "p",
		Autoincrement: asBool(row["is_identity"]),
		Comment:       asString(row["comment"]),
		Encoding:      asString(row["encoding"]),
		Position:      position,
	}
	if c.BaseType() == "varchar" && c.Length >= vertica.VarcharMaxLength {
		c.Type = "long varchar"
	}
	if c.Encoding == "" {
		c.Encoding = "AUTO"
	}

	if def, ok := row["column_default"]; ok && def != nil {
		v := asString(def)
		if m := quotedDefault.FindStringSubmatch(v); m != nil {
			v = m[1]
		}
		if !strings.HasPrefix(strings.ToUpper(v), "NULL") {
			c.Default = &v
		}
	}
	return c
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case int32:
		return int(x)
	case float64:
		return int(x)
	case string, []byte:
		n, _ := strconv.Atoi(strings.TrimSpace(asString(x)))
		return n
	}
	return 0
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case string, []byte:
		switch strings.ToLower(strings.TrimSpace(asString(x))) {
		case "t", "true", "1", "yes", "y":
			return true
		}
	}
	return false
}
