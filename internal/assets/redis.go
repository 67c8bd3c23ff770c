package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces transcript keys.
const DefaultRedisPrefix = "livescript:transcript:"

// RedisSource reads assets stored as plain string values under prefix+name.
type RedisSource struct {
	client *redis.Client
	prefix string
}

var _ Source = (*RedisSource)(nil)

// NewRedisSource wraps an existing client. An empty prefix selects
// [DefaultRedisPrefix].
func NewRedisSource(client *redis.Client, prefix string) *RedisSource {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSource{client: client, prefix: prefix}
}

// DialRedis parses a redis:// URL and returns a source for it.
func DialRedis(url, prefix string) (*RedisSource, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("assets: redis: parse url: %w", err)
	}
	return NewRedisSource(redis.NewClient(opts), prefix), nil
}

// Name implements [Source].
func (s *RedisSource) Name() string { return "redis" }

// Fetch implements [Source].
func (s *RedisSource) Fetch(ctx context.Context, name string) (string, error) {
	key := s.prefix + name
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("assets: redis GET %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("assets: redis GET %s: %w", key, err)
	}
	return val, nil
}

// Put stores body under name with no expiry.
func (s *RedisSource) Put(ctx context.Context, name, body string) error {
	if err := s.client.Set(ctx, s.prefix+name, body, 0).Err(); err != nil {
		return fmt.Errorf("assets: redis SET %s: %w", s.prefix+name, err)
	}
	return nil
}

// Ping checks connectivity. It satisfies the health checker signature.
func (s *RedisSource) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("assets: redis ping: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
