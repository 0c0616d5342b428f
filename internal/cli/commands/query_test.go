package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapvertica/pkg/backend/backendtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peopleFake(t *testing.T) *backendtest.Fake {
	t.Helper()
	useConfig(t, shardedConfig)
	fake := useFake(t)
	fake.On("SELECT id, name FROM people", backendtest.Result{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{int64(1), "ada"}, {int64(2), nil}},
	})
	return fake
}

func TestQueryCommand_Formats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{format: "table", check: func(t *testing.T, out string) {
			assert.Contains(t, out, "ada")
			assert.Contains(t, out, "NULL")
			assert.Contains(t, out, "(2 rows)")
		}},
		{format: "csv", check: func(t *testing.T, out string) {
			assert.Equal(t, "id,name\n1,ada\n2,NULL\n", out)
		}},
		{format: "tsv", check: func(t *testing.T, out string) {
			assert.Equal(t, "id\tname\n1\tada\n2\t\n", out)
		}},
		{format: "md", check: func(t *testing.T, out string) {
			assert.Equal(t, "| id | name |\n| --- | --- |\n| 1 | ada |\n| 2 | NULL |\n", out)
		}},
		{format: "json", check: func(t *testing.T, out string) {
			var got []map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			require.Len(t, got, 2)
			assert.Equal(t, "ada", got[0]["name"])
			assert.EqualValues(t, 2, got[1]["id"])
			assert.Nil(t, got[1]["name"])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			peopleFake(t)
			out, _, err := runCommand(t, NewQueryCommand(), "--format", tt.format, "SELECT id, name FROM people;")
			require.NoError(t, err)
			tt.check(t, out)
		})
	}
}

func TestQueryCommand_EmptyResult(t *testing.T) {
	useConfig(t, shardedConfig)
	useFake(t)

	out, _, err := runCommand(t, NewQueryCommand(), "SELECT * FROM nothing")
	require.NoError(t, err)
	assert.Equal(t, "(0 rows)\n", out)
}

func TestQueryCommand_InputSources(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		fake := peopleFake(t)
		path := filepath.Join(t.TempDir(), "q.sql")
		require.NoError(t, os.WriteFile(path, []byte("SELECT id, name FROM people;\n"), 0600))

		out, _, err := runCommand(t, NewQueryCommand(), "--input", path, "--format", "csv")
		require.NoError(t, err)
		assert.Contains(t, out, "1,ada")
		assert.Contains(t, fake.Executed(), "SELECT id, name FROM people")
	})

	t.Run("stdin", func(t *testing.T) {
		peopleFake(t)
		cmd := NewQueryCommand()
		var out strings.Builder
		cmd.SetOut(&out)
		cmd.SetErr(&strings.Builder{})
		cmd.SetIn(strings.NewReader("SELECT id, name FROM people"))
		cmd.SetArgs([]string{"--format", "csv"})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "2,NULL")
	})

	t.Run("nothing", func(t *testing.T) {
		peopleFake(t)
		_, _, err := runCommand(t, NewQueryCommand())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no SQL given")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := runCommand(t, NewQueryCommand(), "--input", filepath.Join(t.TempDir(), "nope.sql"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read file")
	})
}

func TestQueryCommand_All(t *testing.T) {
	useConfig(t, shardedConfig)
	fake := useFake(t)
	fake.Respond(newCluster().respond)

	out, _, err := runCommand(t, NewQueryCommand(), "--all", "--format", "csv", "SELECT host")
	require.NoError(t, err)
	assert.Equal(t, "host,schema\nh1,t_a\nh1,other\nh2,t_b\n", out)
}

func TestQueryCommand_ShardAndSchema(t *testing.T) {
	useConfig(t, shardedConfig)
	fake := useFake(t)
	fake.Respond(newCluster().respond)

	out, _, err := runCommand(t, NewQueryCommand(), "--shard", "2", "--schema", "t_b", "--format", "csv", "SELECT host")
	require.NoError(t, err)
	assert.Equal(t, "host,schema\nh2,t_b\n", out)
	assert.Contains(t, executedOn(fake, "SET search_path"), "h2: SET search_path TO t_b")
}

func TestQueryCommand_ShardOnly(t *testing.T) {
	useConfig(t, shardedConfig)
	fake := useFake(t)
	fake.Respond(newCluster().respond)

	_, _, err := runCommand(t, NewQueryCommand(), "--shard", "2", "SELECT host")
	require.NoError(t, err)
	assert.Equal(t, []string{"h2: SELECT host"}, executedOn(fake, "SELECT host"))
}

func TestQueryCommand_Errors(t *testing.T) {
	useConfig(t, shardedConfig)
	fake := useFake(t)
	fake.Respond(newCluster().respond)

	_, _, err := runCommand(t, NewQueryCommand(), "BROKEN SQL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query failed")

	_, _, err = runCommand(t, NewQueryCommand(), "--shard", "9", "SELECT host")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "#9")
}
