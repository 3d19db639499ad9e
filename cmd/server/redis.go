package main

import (
	"github.com/go-redis/redis/v8"

	"smartqr/internal/engine/scans"
	"smartqr/internal/platform/config"
)

// newRedis returns nil when Redis is disabled.
func newRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return scans.NewRedisClient(cfg)
}
