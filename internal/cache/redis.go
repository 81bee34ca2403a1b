package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	valuePrefix = "kotoba:rw:"
	tagPrefix   = "kotoba:tag:"

	invalidateBatch = 256
)

// Redis stores entries as JSON strings and tag membership as Redis sets.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// RedisOptions holds connection parameters for NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// NewRedis wraps client. A zero ttl stores entries without expiry.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Load implements Cache.
func (c *Redis) Load(ctx context.Context, key string) (map[string]float64, bool, error) {
	data, err := c.client.Get(ctx, valuePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var value map[string]float64
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return value, true, nil
}

// Save implements Cache. The value and its tag memberships are written in one transaction.
func (c *Redis) Save(ctx context.Context, key string, value map[string]float64, tags []string) error {
	if value == nil {
		value = map[string]float64{}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	redisKey := valuePrefix + key
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKey, data, c.ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, tagPrefix+tag, redisKey)
			if c.ttl > 0 {
				pipe.Expire(ctx, tagPrefix+tag, c.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// InvalidateTag implements Cache. Members are popped in batches so a Save
// racing with the invalidation keeps its membership in the tag set.
func (c *Redis) InvalidateTag(ctx context.Context, tag string) (int, error) {
	setKey := tagPrefix + tag
	n := 0
	for {
		members, err := c.client.SPopN(ctx, setKey, invalidateBatch).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return n, fmt.Errorf("cache tag members: %w", err)
		}
		if len(members) == 0 {
			return n, nil
		}
		deleted, err := c.client.Del(ctx, members...).Result()
		if err != nil {
			return n, fmt.Errorf("cache delete: %w", err)
		}
		n += int(deleted)
	}
}
