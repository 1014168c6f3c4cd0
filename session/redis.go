package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acme-app/authcontext/core"
)

// DefaultKeyPrefix namespaces session hashes in Redis.
const DefaultKeyPrefix = "authcontext:session:"

// RedisBackend stores each session as one Redis hash whose expiry slides on
// every write.
type RedisBackend struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend) error

// WithTTL sets the idle lifetime of a session. Default: DefaultTTL.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) error {
		if ttl <= 0 {
			return errors.New("session ttl must be positive")
		}
		b.ttl = ttl
		return nil
	}
}

// WithKeyPrefix sets the Redis key prefix. Default: DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(b *RedisBackend) error {
		if prefix == "" {
			return errors.New("key prefix cannot be empty")
		}
		b.prefix = prefix
		return nil
	}
}

// NewRedisBackend returns a backend using client.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) (*RedisBackend, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	b := &RedisBackend{
		client: client,
		ttl:    DefaultTTL,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return b, nil
}

// DialRedis creates a client for addr and checks connectivity.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (b *RedisBackend) key(id string) string {
	return b.prefix + id
}

func (b *RedisBackend) Session(id string) core.SessionStore {
	return &redisSession{backend: b, key: b.key(id)}
}

func (b *RedisBackend) Exists(ctx context.Context, id string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (b *RedisBackend) Destroy(ctx context.Context, id string) error {
	if err := b.client.Del(ctx, b.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

type redisSession struct {
	backend *RedisBackend
	key     string
}

func (s *redisSession) Has(ctx context.Context, field string) (bool, error) {
	ok, err := s.backend.client.HExists(ctx, s.key, field).Result()
	if err != nil {
		return false, fmt.Errorf("redis hexists: %w", err)
	}
	return ok, nil
}

func (s *redisSession) Get(ctx context.Context, field string) ([]byte, error) {
	v, err := s.backend.client.HGet(ctx, s.key, field).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis hget: %w", err)
	}
	return v, nil
}

func (s *redisSession) Set(ctx context.Context, field string, value []byte) error {
	_, err := s.backend.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, field, value)
		pipe.Expire(ctx, s.key, s.backend.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (s *redisSession) Remove(ctx context.Context, field string) error {
	if err := s.backend.client.HDel(ctx, s.key, field).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}
