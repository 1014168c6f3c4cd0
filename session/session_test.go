package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis returns a client for a local Redis or skips the test.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   1, // Use DB 1 for tests to avoid conflicts
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available - skipping test")
	}
	client.FlushDB(ctx)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	out := map[string]Backend{
		"memory": NewMemoryBackend(time.Minute),
	}
	if !testing.Short() {
		client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
		if client.Ping(context.Background()).Err() == nil {
			client.FlushDB(context.Background())
			rb, err := NewRedisBackend(client, WithTTL(time.Minute), WithKeyPrefix("authcontext:test:"))
			require.NoError(t, err)
			out["redis"] = rb
			t.Cleanup(func() { _ = client.Close() })
		} else {
			_ = client.Close()
		}
	}
	return out
}

func TestBackend(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			id, err := NewID()
			require.NoError(t, err)
			s := b.Session(id)

			t.Run("missing key", func(t *testing.T) {
				ok, err := s.Has(ctx, "k")
				require.NoError(t, err)
				assert.False(t, ok)

				v, err := s.Get(ctx, "k")
				require.NoError(t, err)
				assert.Nil(t, v)

				exists, err := b.Exists(ctx, id)
				require.NoError(t, err)
				assert.False(t, exists, "reads do not create a session")
			})

			t.Run("set, get, remove", func(t *testing.T) {
				require.NoError(t, s.Set(ctx, "k", []byte("v")))

				ok, err := s.Has(ctx, "k")
				require.NoError(t, err)
				assert.True(t, ok)

				v, err := s.Get(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, []byte("v"), v)

				require.NoError(t, s.Remove(ctx, "k"))
				ok, err = s.Has(ctx, "k")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("removing a missing key is not an error", func(t *testing.T) {
				assert.NoError(t, s.Remove(ctx, "never-set"))
			})

			t.Run("sessions are isolated", func(t *testing.T) {
				otherID, err := NewID()
				require.NoError(t, err)
				require.NoError(t, s.Set(ctx, "shared", []byte("mine")))

				v, err := b.Session(otherID).Get(ctx, "shared")
				require.NoError(t, err)
				assert.Nil(t, v)
			})

			t.Run("destroy drops every value", func(t *testing.T) {
				require.NoError(t, s.Set(ctx, "a", []byte("1")))
				exists, err := b.Exists(ctx, id)
				require.NoError(t, err)
				assert.True(t, exists)

				require.NoError(t, b.Destroy(ctx, id))
				exists, err = b.Exists(ctx, id)
				require.NoError(t, err)
				assert.False(t, exists)
			})
		})
	}
}

func TestMemoryBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewMemoryBackend(10 * time.Minute)
	b.now = func() time.Time { return now }

	s := b.Session("sid")
	require.NoError(t, s.Set(ctx, "k", []byte("v")))

	// Reads slide the expiry.
	now = now.Add(9 * time.Minute)
	ok, err := s.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(9 * time.Minute)
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(11 * time.Minute)
	v, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)

	exists, err := b.Exists(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryBackend_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBackend(0).Session("sid")

	in := []byte("value")
	require.NoError(t, s.Set(ctx, "k", in))
	in[0] = 'X'

	out, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "value", string(out))

	out[0] = 'Y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "value", string(again))
}

func TestRedisBackend_TTL(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	b, err := NewRedisBackend(client, WithTTL(time.Minute))
	require.NoError(t, err)
	require.NoError(t, b.Session("sid").Set(ctx, "k", []byte("v")))

	ttl, err := client.TTL(ctx, DefaultKeyPrefix+"sid").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestNewRedisBackend_Options(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	_, err := NewRedisBackend(nil)
	assert.Error(t, err)

	_, err = NewRedisBackend(client, WithTTL(0))
	assert.ErrorContains(t, err, "ttl must be positive")

	_, err = NewRedisBackend(client, WithKeyPrefix(""))
	assert.ErrorContains(t, err, "prefix cannot be empty")

	b, err := NewRedisBackend(client, WithKeyPrefix("x:"))
	require.NoError(t, err)
	assert.Equal(t, "x:abc", b.key("abc"))
}

func TestDialRedis_RequiresAddr(t *testing.T) {
	_, err := DialRedis(context.Background(), "", "", 0)
	assert.ErrorContains(t, err, "addr is required")
}

func TestNewID(t *testing.T) {
	a, err := NewID()
	require.NoError(t, err)
	b, err := NewID()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, ValidID(a))
	assert.False(t, ValidID("short"))
	assert.False(t, ValidID(a[:len(a)-1]+"z"))
}
