package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the Store backend used in production, keyed by opaque
// string keys and carrying opaque byte values with no expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials redisURL (redis://[:password@]host:port[/db] or
// rediss:// for TLS) and verifies the connection with a bounded ping.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Store(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, key, data, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
