package commands

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/leapstack-labs/leapvertica/internal/cli/config"
	"github.com/leapstack-labs/leapvertica/internal/cli/testutil"
	"github.com/leapstack-labs/leapvertica/pkg/adapter"
	"github.com/leapstack-labs/leapvertica/pkg/adapters/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/backend"
	"github.com/leapstack-labs/leapvertica/pkg/backend/backendtest"
	"github.com/leapstack-labs/leapvertica/pkg/core"
	dialect "github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shardedConfig = `output: markdown
connection:
  type: vertica
  global:
    user: dbadmin
    password: secret
    port: 5433
    dbname: vmart
  shards:
    - id: 1
      host: h1
    - id: 2
      host: h2
      dbname: vmart2
schema_prefix: t_
`

// useConfig loads content as the current configuration.
func useConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	path := testutil.WriteConfig(t, content)

	config.ResetConfig()
	cfg, err := config.LoadConfig(path, nil)
	require.NoError(t, err)
	return cfg
}

// useFake makes every command connect through an in-memory backend.
func useFake(t *testing.T) *backendtest.Fake {
	t.Helper()
	fake := backendtest.New()
	prev := newAdapter
	newAdapter = func(_ core.ConnectionConfig, logger *slog.Logger) (adapter.Adapter, error) {
		return vertica.New(logger, vertica.WithBackend(fake)), nil
	}
	t.Cleanup(func() { newAdapter = prev })
	return fake
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func hostOf(dsn string) string {
	_, rest, _ := strings.Cut(dsn, "Servername=")
	host, _, _ := strings.Cut(rest, ";")
	return host
}

// cluster answers catalog queries per host and tracks each session's
// search path.
type cluster struct {
	mu      sync.Mutex
	schemas map[string][]string
	paths   map[string]string
	tables  map[string]backendtest.Result // keyed by "host: sql"
	result  backendtest.Result
}

func newCluster() *cluster {
	return &cluster{
		schemas: map[string][]string{
			"h1": {"t_a", "other"},
			"h2": {"t_b"},
		},
		paths:  make(map[string]string),
		tables: make(map[string]backendtest.Result),
	}
}

func (c *cluster) respond(call backendtest.Call) (backendtest.Result, backend.ErrorInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	host := hostOf(call.DSN)
	switch {
	case call.SQL == dialect.ListNamespacesSQL:
		rows := make([][]any, 0, len(c.schemas[host]))
		for _, s := range c.schemas[host] {
			rows = append(rows, []any{s})
		}
		return backendtest.Result{Columns: []string{"name"}, Rows: rows}, backend.ErrorInfo{}
	case call.SQL == dialect.ShowSearchPathSQL:
		path := c.paths[call.Handle]
		if path == "" {
			path = `"$user", public`
		}
		return backendtest.Result{Columns: []string{"name", "setting"}, Rows: [][]any{{"search_path", path}}}, backend.ErrorInfo{}
	case strings.HasPrefix(call.SQL, "SET search_path TO "):
		c.paths[call.Handle] = strings.TrimPrefix(call.SQL, "SET search_path TO ")
		return backendtest.Result{}, backend.ErrorInfo{}
	case call.SQL == "SELECT host":
		return backendtest.Result{
			Columns: []string{"host", "schema"},
			Rows:    [][]any{{host, c.paths[call.Handle]}},
		}, backend.ErrorInfo{}
	case strings.HasPrefix(call.SQL, "BROKEN"):
		return backendtest.Result{}, backend.ErrorInfo{Code: "42601", Message: "syntax error"}
	}
	if r, ok := c.tables[host+": "+call.SQL]; ok {
		return r, backend.ErrorInfo{}
	}
	return c.result, backend.ErrorInfo{}
}

// executedOn lists "host: sql" for executed statements matching prefix.
func executedOn(fake *backendtest.Fake, prefix string) []string {
	var got []string
	for _, c := range fake.Calls("execute") {
		if strings.HasPrefix(c.SQL, prefix) {
			got = append(got, hostOf(c.DSN)+": "+c.SQL)
		}
	}
	return got
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{cmd: NewQueryCommand(), use: "query [SQL]", flags: []string{"format", "input", "shard", "schema", "all"}},
		{cmd: NewExecCommand(), use: "exec [SQL]", flags: []string{"input", "shard", "schema", "all"}},
		{cmd: NewShardsCommand(), use: "shards", flags: []string{"format", "connect-sql"}},
		{cmd: NewSchemaCommand(), use: "schema", flags: []string{"file", "prefix", "shard", "schema"}},
		{cmd: NewAllocateCommand(), use: "allocate [key]", flags: []string{"count"}},
		{cmd: NewDoctorCommand(), use: "doctor", flags: []string{"format", "slow", "concurrency"}},
		{cmd: NewLoadCommand(), use: "load <table> <file>", flags: []string{"tsv", "shard", "schema"}},
		{cmd: NewInitCommand(), use: "init [directory]", flags: []string{"force", "sharded"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				lookup := tt.cmd.Flags().Lookup(flag)
				if lookup == nil {
					lookup = tt.cmd.PersistentFlags().Lookup(flag)
				}
				assert.NotNil(t, lookup, "flag %q should exist", flag)
			}
		})
	}
}

func TestSchemaCommand_Subcommands(t *testing.T) {
	cmd := NewSchemaCommand()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"diff", "apply", "dump"}, names)
}

func TestNewCommandContext_ConnectFailure(t *testing.T) {
	useConfig(t, shardedConfig)
	fake := useFake(t)
	fake.FailConnect("Driver=vertica;Servername=h1;Port=5433;Database=vmart;", backend.ErrorInfo{Code: "08001", Message: "host unreachable"})

	_, _, err := runCommand(t, NewQueryCommand(), "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to shard 1")
}

func TestGetConfig_EnvFallback(t *testing.T) {
	config.ResetConfig()
	t.Setenv("LEAPVERTICA_CONNECTION__HOST", "envhost")
	t.Setenv("LEAPVERTICA_CONNECTION__PORT", "5444")
	t.Setenv("LEAPVERTICA_OUTPUT", "json")

	cfg := getConfig()
	assert.Equal(t, "vertica", cfg.Connection.Type)
	assert.Equal(t, core.TransportODBC, cfg.Connection.Transport)
	assert.Equal(t, "envhost", cfg.Connection.Host)
	assert.Equal(t, 5444, cfg.Connection.Port)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, config.DefaultSchemaFile, cfg.SchemaFile)
}
