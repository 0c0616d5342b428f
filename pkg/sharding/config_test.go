package sharding

import (
	"testing"

	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShards(t *testing.T) {
	cfg := core.ConnectionConfig{
		User:          "top",
		DriverOptions: map[string]string{"odbc_driver": "vertica"},
		Global: map[string]any{
			"user":     "dbadmin",
			"password": "secret",
			"port":     5433,
			"dbname":   "vmart",
			"driverOptions": map[string]any{
				"ConnectionLoadBalance": 1,
			},
		},
		Shards: []map[string]any{
			{"id": 1, "host": "h1"},
			{"id": "2", "host": "h2", "dbname": "vmart2", "port": "5434"},
		},
	}

	shards, err := ParseShards(cfg)
	require.NoError(t, err)
	require.Len(t, shards, 2)

	assert.Equal(t, core.ShardParams{
		ID: 1, Host: "h1", Port: 5433, DBName: "vmart", User: "dbadmin", Password: "secret",
		DriverOptions: map[string]string{"odbc_driver": "vertica", "ConnectionLoadBalance": "1"},
	}, shards[0])

	assert.Equal(t, 2, shards[1].ID)
	assert.Equal(t, 5434, shards[1].Port)
	assert.Equal(t, "vmart2", shards[1].DBName)
	assert.Equal(t, "dbadmin", shards[1].User)

	shards[0].DriverOptions["x"] = "y"
	assert.NotContains(t, shards[1].DriverOptions, "x", "records do not share maps")
	assert.NotContains(t, cfg.DriverOptions, "x")
}

func TestParseShards_Errors(t *testing.T) {
	tests := []struct {
		name   string
		shards []map[string]any
		want   string
	}{
		{name: "no shards", shards: nil, want: "require 'shards'"},
		{name: "missing id", shards: []map[string]any{{"host": "h"}}, want: "missing 'id'"},
		{name: "nil id", shards: []map[string]any{{"id": nil}}, want: "missing 'id'"},
		{name: "non-numeric id", shards: []map[string]any{{"id": "abc"}}, want: "positive number"},
		{name: "fractional id", shards: []map[string]any{{"id": 1.5}}, want: "positive number"},
		{name: "zero id", shards: []map[string]any{{"id": 0}}, want: "positive number"},
		{name: "negative id", shards: []map[string]any{{"id": -3}}, want: "positive number"},
		{name: "duplicate id", shards: []map[string]any{{"id": 3}, {"id": "3"}}, want: "shard 3 is duplicated"},
		{name: "bad port", shards: []map[string]any{{"id": 1, "port": "x"}}, want: "shard 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseShards(core.ConnectionConfig{Shards: tt.shards})
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGlobalParams(t *testing.T) {
	p, err := GlobalParams(core.ConnectionConfig{
		Host:   "top",
		Port:   5433,
		Global: map[string]any{"dbname": "vmart", "user": "dbadmin"},
	})
	require.NoError(t, err)
	assert.Equal(t, core.ShardParams{Host: "top", Port: 5433, DBName: "vmart", User: "dbadmin"}, p)
}
