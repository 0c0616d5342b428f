package sharding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leapvertica/pkg/core"
)

// ParseShards validates the shard list of cfg and returns one merged
// parameter record per shard, in configuration order. Each record starts
// from the top-level connection fields, then the global template, then the
// shard's own entries.
func ParseShards(cfg core.ConnectionConfig) ([]core.ShardParams, error) {
	if len(cfg.Shards) == 0 {
		return nil, &ConfigError{Message: "connection parameters require 'shards' configurations"}
	}

	seen := make(map[int]bool, len(cfg.Shards))
	out := make([]core.ShardParams, 0, len(cfg.Shards))
	for _, raw := range cfg.Shards {
		idValue, ok := raw["id"]
		if !ok || idValue == nil {
			return nil, &ConfigError{Message: "missing 'id' for one configured shard, please specify a unique shard-id"}
		}
		id, ok := shardID(idValue)
		if !ok || id < 1 {
			return nil, &ConfigError{Message: fmt.Sprintf("shard id has to be a positive number, got %v", idValue)}
		}
		if seen[id] {
			return nil, &ConfigError{Message: fmt.Sprintf("shard %d is duplicated in the configuration", id)}
		}
		seen[id] = true

		p, err := mergeParams(cfg, raw)
		if err != nil {
			return nil, &ConfigError{Message: fmt.Sprintf("shard %d: %v", id, err)}
		}
		p.ID = id
		out = append(out, p)
	}
	return out, nil
}

// GlobalParams returns the top-level fields merged with the global template.
func GlobalParams(cfg core.ConnectionConfig) (core.ShardParams, error) {
	return mergeParams(cfg, nil)
}

func mergeParams(cfg core.ConnectionConfig, shard map[string]any) (core.ShardParams, error) {
	p := cfg.Base()
	for _, src := range []map[string]any{cfg.Global, shard} {
		if len(src) == 0 {
			continue
		}
		if err := decode(src, &p); err != nil {
			return core.ShardParams{}, err
		}
	}
	return p, nil
}

func decode(src map[string]any, dst *core.ShardParams) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
		MatchName: func(mapKey, fieldName string) bool {
			return strings.EqualFold(strings.ReplaceAll(mapKey, "_", ""), strings.ReplaceAll(fieldName, "_", ""))
		},
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}

func shardID(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		return int(x), true
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}
