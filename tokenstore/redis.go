package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("tokenstore: redis unavailable")

// RedisBackend stores values under "<prefix>:<namespace>:<key>". The namespace lets one
// Redis instance serve several devices or accounts.
type RedisBackend struct {
	client    redis.UniversalClient
	prefix    string
	namespace string
}

// NewRedisBackend returns a backend on client. Empty prefix defaults to "emf".
func NewRedisBackend(client redis.UniversalClient, prefix, namespace string) *RedisBackend {
	if prefix == "" {
		prefix = "emf"
	}
	if namespace == "" {
		namespace = "default"
	}
	return &RedisBackend{client: client, prefix: prefix, namespace: namespace}
}

func (r *RedisBackend) key(k string) string {
	return r.prefix + ":" + r.namespace + ":" + k
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
