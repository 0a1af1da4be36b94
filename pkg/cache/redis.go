package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	fieldData     = "data"
	fieldStoredAt = "stored_at"
	scanBatch     = 200
)

// RedisCache stores each entry as a hash {data, stored_at} with a key TTL.
type RedisCache struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, now: time.Now}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	data, ok := vals[fieldData]
	if !ok {
		return Entry{}, false, nil
	}

	entry := Entry{Data: []byte(data)}
	if ts, err := strconv.ParseInt(vals[fieldStoredAt], 10, 64); err == nil {
		entry.StoredAt = time.UnixMilli(ts)
	}
	return entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, fieldData, data, fieldStoredAt, c.now().UnixMilli())
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, prefix string) error {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	keys := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanBatch {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.rdb.Del(ctx, keys...).Err()
	}
	return nil
}
