package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tagPrefix = "tag:"
	genPrefix = "gen:"

	// Generations must outlive any read that started before an invalidation.
	generationTTL = 24 * time.Hour
)

// RedisStore shares cached values across API replicas. Each tag is a redis set
// of keys; the set outlives its members by at most one TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, tagPrefix+tag, key)
			pipe.Expire(ctx, tagPrefix+tag, ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Generation(ctx context.Context, tag string) (uint64, error) {
	gen, err := s.client.Get(ctx, genPrefix+tag).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetIfGeneration watches the generation key, so an invalidation landing
// between the check and the write aborts the transaction.
func (s *RedisStore) SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, tag string, gen uint64) (bool, error) {
	genKey := genPrefix + tag
	stored := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, ttl)
			pipe.SAdd(ctx, tagPrefix+tag, key)
			pipe.Expire(ctx, tagPrefix+tag, ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) InvalidateTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		// Bump first so writers still holding the old generation are refused.
		genKey := genPrefix + tag
		if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, genKey)
			pipe.Expire(ctx, genKey, generationTTL)
			return nil
		}); err != nil {
			return err
		}

		setKey := tagPrefix + tag
		keys, err := s.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return err
		}
		if err := s.client.Del(ctx, append(keys, setKey)...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
