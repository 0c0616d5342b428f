package sharding

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNoShards                 = errors.New("no shards found")
	ErrUnknownShard             = errors.New("unknown shard")
	ErrShardSwitchInTransaction = errors.New("cannot switch shard when transaction is active")
	ErrNoShardSelected          = errors.New("no shard selected")
)

// ConfigError reports an invalid shard configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "invalid shard configuration: " + e.Message
}

func unknownShard(id int) error {
	return fmt.Errorf("%w #%d", ErrUnknownShard, id)
}
