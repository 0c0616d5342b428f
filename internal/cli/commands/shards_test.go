package commands

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardsCommand_Table(t *testing.T) {
	useConfig(t, shardedConfig)

	out, _, err := runCommand(t, NewShardsCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "h1")
	assert.Contains(t, out, "vmart2")
	assert.Contains(t, out, "dbadmin")
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "(2 shards)")
}

func TestShardsCommand_JSON(t *testing.T) {
	useConfig(t, shardedConfig)

	out, _, err := runCommand(t, NewShardsCommand(), "--format", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.EqualValues(t, 2, got[1]["id"])
	assert.Equal(t, "h2", got[1]["host"])
	assert.EqualValues(t, 5433, got[1]["port"])
	assert.Equal(t, "vmart2", got[1]["dbname"])
}

func TestShardsCommand_ConnectSQL(t *testing.T) {
	useConfig(t, shardedConfig)

	out, _, err := runCommand(t, NewShardsCommand(), "--connect-sql")
	require.NoError(t, err)
	assert.Equal(t, "-- shard 1\n"+
		"CONNECT TO VERTICA vmart USER dbadmin PASSWORD 'secret' ON 'h1', 5433;\n"+
		"-- shard 2\n"+
		"CONNECT TO VERTICA vmart2 USER dbadmin PASSWORD 'secret' ON 'h2', 5433;\n", out)
}

func TestShardsCommand_SingleNode(t *testing.T) {
	useConfig(t, `connection:
  type: vertica
  host: db1
  port: 5433
  dbname: vmart
  user: dbadmin
`)

	out, _, err := runCommand(t, NewShardsCommand(), "--format", "json")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.EqualValues(t, 1, got[0]["id"])
	assert.Equal(t, "db1", got[0]["host"])
}

func TestShardsCommand_InvalidShards(t *testing.T) {
	useConfig(t, `connection:
  type: vertica
  shards:
    - host: h1
`)

	_, _, err := runCommand(t, NewShardsCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'id'")
}
