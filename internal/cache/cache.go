package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/config"
	"github.com/redis/go-redis/v9"
)

// Store is a byte cache whose entries can be dropped in groups by tag.
type Store interface {
	// Get reports ok=false on a miss or an expired entry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error
	Delete(ctx context.Context, keys ...string) error
	// InvalidateTags deletes every entry stored under any of tags and bumps
	// each tag's generation.
	InvalidateTags(ctx context.Context, tags ...string) error
	// Generation is the number of times tag has been invalidated.
	Generation(ctx context.Context, tag string) (uint64, error)
	// SetIfGeneration stores value under tag only while tag is still at gen.
	// A reader that took gen before loading its data therefore cannot cache
	// a result an invalidation has already superseded.
	SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, tag string, gen uint64) (bool, error)
	Close() error
}

// New builds the store selected by cfg.Driver.
func New(cfg config.CacheConfig, redisCfg config.RedisConfig) (Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemoryStore(cfg.JanitorInterval), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("pinging redis: %w", err)
		}
		return NewRedisStore(client), nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
}
