package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore shares routes between processes. Writes use SETNX so a route
// another process stored for the same key is kept and returned.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore namespaces keys under prefix, typically "<chain>:<venue>".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k Key) string {
	return "dexswap:route:" + s.prefix + ":" + k.String()
}

func (s *RedisStore) Get(ctx context.Context, k Key) (Route, bool, error) {
	raw, err := s.client.Get(ctx, s.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Route{}, false, nil
	}
	if err != nil {
		return Route{}, false, fmt.Errorf("redis get: %w", err)
	}
	var r Route
	if err := json.Unmarshal(raw, &r); err != nil {
		return Route{}, false, fmt.Errorf("decoding cached route: %w", err)
	}
	return r, true, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, k Key, r Route, ttl time.Duration) (Route, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return Route{}, fmt.Errorf("encoding route: %w", err)
	}
	set, err := s.client.SetNX(ctx, s.key(k), raw, ttl).Result()
	if err != nil {
		return Route{}, fmt.Errorf("redis setnx: %w", err)
	}
	if set {
		return r, nil
	}
	existing, ok, err := s.Get(ctx, k)
	if err != nil {
		return Route{}, err
	}
	if !ok {
		// Expired between SETNX and GET.
		return r, nil
	}
	return existing, nil
}
