package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisCache stores msgpack-encoded snapshots in Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(ctx context.Context, o RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisCacheWithClient(client, o.Prefix), nil
}

func NewRedisCacheWithClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) Get(ctx context.Context, pair string) (*Snapshot, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+pair).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(b, &snap); err != nil {
		return nil, false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snap, true, nil
}

func (c *RedisCache) Set(ctx context.Context, pair string, snap *Snapshot, ttl time.Duration) error {
	if snap == nil {
		return nil
	}
	b, err := msgpack.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+pair, b, ttl).Err()
}
