package statestore

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN when walking a prefix.
const scanBatch = 200

// Redis stores each key as a plain string value.
type Redis struct {
	rdb *goredis.Client
}

// NewRedis wraps an existing client. Close closes the client.
func NewRedis(rdb *goredis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (r *Redis) BulkGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

func (r *Redis) Query(ctx context.Context, prefix string, filter map[string]any) ([][]byte, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %q: %w", prefix, err)
	}

	values, err := r.BulkGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(values))
	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		match, err := matchesFilter(v, filter)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
