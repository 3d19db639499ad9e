package scans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"smartqr/internal/platform/config"
)

const dayKeyTTL = 48 * time.Hour

// RedisCounter keeps usage counters in Redis so limits hold across instances.
// Only allowed scans are counted.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info().Str("address", cfg.Address).Msg("Connected to Redis")
	return rdb, nil
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "smartqr:scans:"}
}

func (c *RedisCounter) totalKey(qrID string) string {
	return c.prefix + qrID + ":total"
}

func (c *RedisCounter) dayKey(qrID string, day time.Time) string {
	return c.prefix + qrID + ":day:" + day.Format("2006-01-02")
}

func (c *RedisCounter) userKey(qrID, identifier string) string {
	return c.prefix + qrID + ":uid:" + identifier
}

func (c *RedisCounter) Record(ctx context.Context, s *Scan) error {
	if !s.Allowed {
		return nil
	}

	at := time.Now()
	if s.Timestamp > 0 {
		at = time.UnixMilli(s.Timestamp)
	}

	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, c.totalKey(s.QRCodeID))
	dayKey := c.dayKey(s.QRCodeID, at)
	pipe.Incr(ctx, dayKey)
	pipe.Expire(ctx, dayKey, dayKeyTTL)
	if s.Identifier != "" {
		pipe.Incr(ctx, c.userKey(s.QRCodeID, s.Identifier))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCounter) TotalScans(ctx context.Context, qrID string) (int64, error) {
	return c.get(ctx, c.totalKey(qrID))
}

func (c *RedisCounter) ScansOnDay(ctx context.Context, qrID string, day time.Time) (int64, error) {
	return c.get(ctx, c.dayKey(qrID, day))
}

func (c *RedisCounter) ScansByIdentifier(ctx context.Context, qrID, identifier string) (int64, error) {
	return c.get(ctx, c.userKey(qrID, identifier))
}

func (c *RedisCounter) get(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
