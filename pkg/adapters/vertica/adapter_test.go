package vertica

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapvertica/internal/testutil"
	"github.com/leapstack-labs/leapvertica/pkg/adapter"
	"github.com/leapstack-labs/leapvertica/pkg/backend"
	"github.com/leapstack-labs/leapvertica/pkg/backend/backendtest"
	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/driver"
	"github.com/leapstack-labs/leapvertica/pkg/sharding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleNodeConfig() core.ConnectionConfig {
	return core.ConnectionConfig{
		Type:     Name,
		Host:     "db1",
		Port:     5433,
		DBName:   "vmart",
		User:     "dbadmin",
		Password: "pw",
	}
}

func connectedAdapter(t *testing.T) (*Adapter, *backendtest.Fake) {
	t.Helper()
	fake := backendtest.New()
	adp := New(testutil.NewTestLogger(t), WithBackend(fake))
	require.NoError(t, adp.Connect(context.Background(), singleNodeConfig()))
	t.Cleanup(func() { _ = adp.Close() })
	return adp, fake
}

func TestAdapter_ConnectSingleNode(t *testing.T) {
	adp, fake := connectedAdapter(t)

	assert.True(t, adp.IsConnected())
	assert.Equal(t, []int{1}, adp.Manager().Shards())
	assert.Equal(t, 1, adp.Router.ActiveShardID())

	handles := fake.Handles()
	require.Len(t, handles, 1)
	assert.Equal(t, "Driver=vertica;Servername=db1;Port=5433;Database=vmart;", handles[0].DSN())
	assert.Equal(t, "dbadmin", handles[0].User())
	assert.Equal(t, "vertica", adp.DialectName())
}

func TestAdapter_ConnectSharded(t *testing.T) {
	fake := backendtest.New()
	adp := New(nil, WithBackend(fake))
	cfg := core.ConnectionConfig{
		Type:   Name,
		Global: map[string]any{"user": "dbadmin", "port": 5433, "dbname": "vmart"},
		Shards: []map[string]any{
			{"id": 3, "host": "h3"},
			{"id": 7, "host": "h7"},
		},
		Allocation: AllocationHash,
	}
	require.NoError(t, adp.Connect(context.Background(), cfg))
	defer func() { _ = adp.Close() }()

	assert.Equal(t, []int{3, 7}, adp.Manager().Shards())
	assert.Equal(t, 3, adp.Router.ActiveShardID(), "the first configured shard is selected")
	require.Len(t, fake.Handles(), 1)
	assert.Equal(t, "Driver=vertica;Servername=h3;Port=5433;Database=vmart;", fake.Handles()[0].DSN())

	a, err := adp.Manager().AllocateShardIDFor("customer-1")
	require.NoError(t, err)
	b, err := adp.Manager().AllocateShardIDFor("customer-1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAdapter_ConnectFailure(t *testing.T) {
	fake := backendtest.New()
	fake.FailConnect("Driver=vertica;Servername=db1;Port=5433;Database=vmart;", backend.ErrorInfo{Code: "08001", Message: "host unreachable"})
	adp := New(nil, WithBackend(fake))

	err := adp.Connect(context.Background(), singleNodeConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to shard 1")
	var connErr *driver.ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "08001", connErr.Code)
	assert.False(t, adp.IsConnected())
	assert.Nil(t, adp.Manager())
}

func TestAdapter_ConnectInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  core.ConnectionConfig
	}{
		{
			name: "unknown allocation",
			cfg:  core.ConnectionConfig{Allocation: "round-robin"},
		},
		{
			name: "shard without id",
			cfg:  core.ConnectionConfig{Shards: []map[string]any{{"host": "h1"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adp := New(nil, WithBackend(backendtest.New()))
			err := adp.Connect(context.Background(), tt.cfg)
			var cfgErr *sharding.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestAdapter_ReconnectClosesPrevious(t *testing.T) {
	adp, fake := connectedAdapter(t)
	require.NoError(t, adp.Connect(context.Background(), singleNodeConfig()))

	handles := fake.Handles()
	require.Len(t, handles, 2)
	assert.True(t, handles[0].Closed())
	assert.False(t, handles[1].Closed())
}

func TestAdapter_NotConnected(t *testing.T) {
	tests := []struct {
		name      string
		operation func(ctx context.Context, adp *Adapter) error
	}{
		{
			name: "Exec",
			operation: func(ctx context.Context, adp *Adapter) error {
				_, err := adp.Exec(ctx, "SELECT 1")
				return err
			},
		},
		{
			name: "Query",
			operation: func(ctx context.Context, adp *Adapter) error {
				_, err := adp.Query(ctx, "SELECT 1")
				return err
			},
		},
		{
			name: "GetTableMetadata",
			operation: func(ctx context.Context, adp *Adapter) error {
				_, err := adp.GetTableMetadata(ctx, "events")
				return err
			},
		},
		{
			name: "LoadCSV",
			operation: func(ctx context.Context, adp *Adapter) error {
				return adp.LoadCSV(ctx, "events", "events.csv")
			},
		},
		{
			name: "LoadRows",
			operation: func(ctx context.Context, adp *Adapter) error {
				_, err := adp.LoadRows(ctx, "events", [][]any{{1}})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.operation(context.Background(), New(nil))
			assert.ErrorIs(t, err, adapter.ErrNotConnected)
		})
	}
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAdapter_LoadCSVCreatesTable(t *testing.T) {
	adp, fake := connectedAdapter(t)
	path := writeCSV(t, "id,full name,sign-up\n1,Ada,2024-01-01\n")

	require.NoError(t, adp.LoadCSV(context.Background(), "people", path))

	executed := fake.Executed()
	assert.Contains(t, executed, "CREATE TABLE people (id VARCHAR(65000), full_name VARCHAR(65000), sign_up VARCHAR(65000))")
	assert.Contains(t, executed, vertica.CopyFromLocalSQL("people", path, vertica.CopyOptions{
		Delimiter:  ",",
		Enclosure:  `"`,
		SkipHeader: true,
		Direct:     true,
	}))
}

func TestAdapter_LoadCSVExistingTable(t *testing.T) {
	adp, fake := connectedAdapter(t)
	fake.On(vertica.ListTableColumnsSQL("analytics", "people"), backendtest.Result{
		Columns: []string{"column_name", "data_type"},
		Rows:    [][]any{{"id", "int"}},
	})
	path := writeCSV(t, "id\n1\n")

	require.NoError(t, adp.LoadCSV(context.Background(), "analytics.people", path))

	for _, sql := range fake.Executed() {
		assert.False(t, strings.HasPrefix(sql, "CREATE"), "unexpected %q", sql)
	}
	last := fake.Executed()[len(fake.Executed())-1]
	assert.True(t, strings.HasPrefix(last, "COPY analytics.people FROM LOCAL "), last)
}

func TestAdapter_LoadCSVErrors(t *testing.T) {
	adp, fake := connectedAdapter(t)

	err := adp.LoadCSV(context.Background(), "people", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open CSV file")

	err = adp.LoadCSV(context.Background(), "people", writeCSV(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CSV header")

	path := writeCSV(t, "id\n1\n")
	fake.FailExecute(vertica.CopyFromLocalSQL("people", path, vertica.CopyOptions{
		Delimiter: ",", Enclosure: `"`, SkipHeader: true, Direct: true,
	}), backend.ErrorInfo{Code: "22V04", Message: "COPY: rejected row"})
	err = adp.LoadCSV(context.Background(), "people", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load CSV")
}

func TestAdapter_LoadRows(t *testing.T) {
	adp, fake := connectedAdapter(t)

	var staged, stagedPath, copySQL string
	fake.Respond(func(call backendtest.Call) (backendtest.Result, backend.ErrorInfo) {
		if !strings.HasPrefix(call.SQL, "COPY ") {
			return backendtest.Result{}, backend.ErrorInfo{}
		}
		copySQL = call.SQL
		_, rest, _ := strings.Cut(call.SQL, "FROM LOCAL '")
		stagedPath, _, _ = strings.Cut(rest, "'")
		data, err := os.ReadFile(stagedPath)
		require.NoError(t, err)
		staged = string(data)
		return backendtest.Result{Affected: 2}, backend.ErrorInfo{}
	})

	n, err := adp.LoadRows(context.Background(), "events", [][]any{
		{int64(1), "signup"},
		{int64(2), nil},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "1\tsignup\n2\t\n", staged)
	assert.True(t, strings.HasPrefix(copySQL, "COPY events FROM LOCAL "), copySQL)
	assert.True(t, strings.HasSuffix(copySQL, ` DELIMITER E'\t' NULL '' DIRECT ABORT ON ERROR`), copySQL)

	_, err = os.Stat(stagedPath)
	assert.True(t, os.IsNotExist(err), "staging file is removed")

	n, err = adp.LoadRows(context.Background(), "events", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdapter_GetTableMetadata(t *testing.T) {
	adp, fake := connectedAdapter(t)
	fake.On(vertica.ListTableColumnsSQL("public", "events"), backendtest.Result{
		Columns: []string{"column_name", "data_type", "is_nullable", "constraint_type"},
		Rows:    [][]any{{"id", "int", false, "p"}},
	})
	fake.On(vertica.CountRowsSQL("public", "events"), backendtest.Result{Columns: []string{"count"}, Rows: [][]any{{"3"}}})

	meta, err := adp.GetTableMetadata(context.Background(), "events")
	require.NoError(t, err)
	assert.Equal(t, "public", meta.Schema)
	assert.Equal(t, int64(3), meta.RowCount)
	require.Len(t, meta.Columns, 1)
	assert.True(t, meta.Columns[0].PrimaryKey)
}

func TestSingleShard(t *testing.T) {
	cfg := SingleShard(singleNodeConfig())
	assert.Equal(t, []map[string]any{{"id": 1}}, cfg.Shards)

	sharded := core.ConnectionConfig{Shards: []map[string]any{{"id": 4}}}
	assert.Equal(t, sharded, SingleShard(sharded))
}

func TestRegistered(t *testing.T) {
	factory, ok := adapter.Get(Name)
	require.True(t, ok)
	assert.IsType(t, &Adapter{}, factory(nil))
}
