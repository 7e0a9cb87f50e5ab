package bus

import (
	"fmt"

	"github.com/BaSui01/teamflow/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// New builds a bus from configuration. client is required for the redis
// backend and ignored otherwise.
func New(cfg config.BusConfig, client redis.UniversalClient, logger *zap.Logger) (Bus, error) {
	switch cfg.Backend {
	case "", "memory":
		if cfg.Mode == "async" {
			return NewAsyncBus(logger), nil
		}
		return NewSyncBus(logger), nil

	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis bus requires a redis client")
		}
		opts := []RedisOption{}
		if cfg.ChannelPrefix != "" {
			opts = append(opts, WithChannelPrefix(cfg.ChannelPrefix))
		}
		if cfg.Mode == "async" {
			opts = append(opts, WithAsyncFanout(0))
		}
		return NewRedisBus(client, logger, opts...), nil

	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Backend)
	}
}
