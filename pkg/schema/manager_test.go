package schema

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leapvertica/internal/testutil"
	"github.com/leapstack-labs/leapvertica/pkg/backend/backendtest"
	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columnHeader = []string{
	"column_name", "data_type", "character_maximum_length", "numeric_precision", "numeric_scale",
	"is_nullable", "column_default", "is_identity", "constraint_type", "comment", "encoding",
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *backendtest.Fake) {
	t.Helper()
	fake := backendtest.New()
	fake.On(vertica.ShowSearchPathSQL, backendtest.Result{
		Columns: []string{"name", "setting"},
		Rows:    [][]any{{"search_path", `"$user", s1, public, v_catalog`}},
	})
	fake.On(vertica.ListNamespacesSQL, backendtest.Result{
		Columns: []string{"name"},
		Rows:    [][]any{{"s1"}, {"public"}, {"s2"}, {"dbadmin_tmp"}},
	})
	fake.On(vertica.ListTablesInSchemaSQL("s1"), backendtest.Result{
		Columns: []string{"schema", "name"},
		Rows:    [][]any{{"s1", "users"}},
	})
	fake.On(vertica.ListTableColumnsSQL("s1", "users"), backendtest.Result{
		Columns: columnHeader,
		Rows: [][]any{
			{"id", "int", nil, int64(64), int64(0), false, nil, true, "p", "", "AUTO"},
			{"name", "varchar(64)", int64(64), nil, nil, true, "'anon'::varchar", false, nil, "display name", "AUTO"},
			{"body", "varchar(65000)", "65000", nil, nil, "t", "NULL", "f", nil, nil, "ZSTD"},
		},
	})

	logger := testutil.NewTestLogger(t)
	conn, err := driver.New(fake, driver.WithLogger(logger)).Connect(context.Background(), core.ShardParams{Host: "h", User: "dbadmin"})
	require.NoError(t, err)
	return NewManager(conn, "dbadmin", append([]Option{WithLogger(logger)}, opts...)...), fake
}

func TestManager_SearchPaths(t *testing.T) {
	ctx := context.Background()
	m, fake := newTestManager(t)

	paths, err := m.SearchPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dbadmin", "s1", "public", "v_catalog"}, paths)

	existing, err := m.ExistingSearchPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "public"}, existing)

	before := len(fake.Executed())
	_, err = m.ExistingSearchPaths(ctx)
	require.NoError(t, err)
	assert.Len(t, fake.Executed(), before, "existing paths are cached")

	require.NoError(t, m.SetSearchPath(ctx, "s2", "public"))
	assert.Contains(t, fake.Executed(), "SET search_path TO s2, public")

	before = len(fake.Executed())
	_, err = m.ExistingSearchPaths(ctx)
	require.NoError(t, err)
	assert.Greater(t, len(fake.Executed()), before, "setting the search path drops the cache")
}

func TestManager_SetSearchPathRequiresSchema(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.SetSearchPath(context.Background()), ErrInvalidSchema)
}

func TestManager_SchemaNames(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	all, err := m.SchemaNames(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "public", "s2", "dbadmin_tmp"}, all)

	prefixed, err := m.SchemaNames(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, prefixed)
}

func TestManager_CreateSchema(t *testing.T) {
	m, _ := newTestManager(t)

	s, err := m.CreateSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", s.Name)

	users := s.Table("users")
	require.NotNil(t, users)
	require.Len(t, users.Columns, 3)

	id := users.Columns[0]
	assert.True(t, id.PrimaryKey)
	assert.True(t, id.Autoincrement)
	assert.False(t, id.Nullable)
	assert.Nil(t, id.Default)
	assert.Equal(t, 1, id.Position)

	name := users.Columns[1]
	assert.Equal(t, 64, name.Length)
	require.NotNil(t, name.Default)
	assert.Equal(t, "anon", *name.Default)
	assert.Equal(t, "display name", name.Comment)

	body := users.Columns[2]
	assert.Equal(t, "long varchar", body.Type)
	assert.Equal(t, 65000, body.Length)
	assert.True(t, body.Nullable)
	assert.False(t, body.Autoincrement)
	assert.Nil(t, body.Default, "NULL default is no default")
	assert.Equal(t, "ZSTD", body.Encoding)
}

func TestManager_CreateSchemaWithoutSearchPath(t *testing.T) {
	fake := backendtest.New()
	conn, err := driver.New(fake).Connect(context.Background(), core.ShardParams{Host: "h"})
	require.NoError(t, err)

	s, err := NewManager(conn, "").CreateSchema(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Tables)
}

func TestManager_UpdateSchemaSQL(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, WithDefaultTableOptions(vertica.TableOptions{Partition: "day"}))

	target := &Schema{Tables: []*Table{
		{Name: "users", Columns: []core.Column{
			{Name: "id", Type: "integer", Autoincrement: true, PrimaryKey: true},
			{Name: "name", Type: "varchar", Length: 64, Nullable: true, Default: strptr("anon"), Comment: "display name"},
			{Name: "email", Type: "varchar", Length: 128, Nullable: true},
		}},
		{Name: "events", Columns: []core.Column{{Name: "day", Type: "date"}}},
	}}

	full, err := m.UpdateSchemaSQL(ctx, target, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE TABLE events (day DATE NOT NULL) PARTITION BY day",
		"ALTER TABLE users ADD email VARCHAR(128)",
		"SELECT MAKE_AHM_NOW();",
		"ALTER TABLE users DROP COLUMN body CASCADE",
	}, full)

	save, err := m.UpdateSchemaSQL(ctx, target, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE TABLE events (day DATE NOT NULL) PARTITION BY day",
		"ALTER TABLE users ADD email VARCHAR(128)",
	}, save)
}

func TestManager_TableName(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	name, err := m.TableName(ctx, "s1", "users")
	require.NoError(t, err)
	assert.Equal(t, "users", name)

	name, err = m.TableName(ctx, "public", "users")
	require.NoError(t, err)
	assert.Equal(t, "public.users", name)
}

func TestColumnValueCoercion(t *testing.T) {
	assert.Equal(t, 12, asInt(" 12 "))
	assert.Equal(t, 3, asInt(float64(3)))
	assert.Zero(t, asInt(nil))
	assert.True(t, asBool("YES"))
	assert.True(t, asBool(int64(1)))
	assert.False(t, asBool("f"))
	assert.Equal(t, "x", asString([]byte("x")))
}
