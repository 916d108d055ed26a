package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRegistry(t *testing.T, ttl time.Duration) *RedisRegistry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRegistry(client, ttl)
}

func registries(t *testing.T) map[string]Registry {
	return map[string]Registry{
		"memory": NewMemoryRegistry(),
		"redis":  newRedisRegistry(t, time.Minute),
	}
}

func TestRegistry_MultiDevice(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ada := uuid.New()

			online, err := reg.IsOnline(ctx, ada)
			require.NoError(t, err)
			assert.False(t, online)

			require.NoError(t, reg.Register(ctx, ada, "phone"))
			require.NoError(t, reg.Register(ctx, ada, "laptop"))

			count, err := reg.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			require.NoError(t, reg.Unregister(ctx, ada, "phone"))
			online, err = reg.IsOnline(ctx, ada)
			require.NoError(t, err)
			assert.True(t, online, "laptop is still connected")

			require.NoError(t, reg.Unregister(ctx, ada, "laptop"))
			online, err = reg.IsOnline(ctx, ada)
			require.NoError(t, err)
			assert.False(t, online)

			count, err = reg.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ada := uuid.New()

			assert.NoError(t, reg.Unregister(ctx, ada, "nothing"))

			require.NoError(t, reg.Register(ctx, ada, "laptop"))
			assert.NoError(t, reg.Unregister(ctx, ada, "other"))

			online, err := reg.IsOnline(ctx, ada)
			require.NoError(t, err)
			assert.True(t, online)
		})
	}
}

func TestRegistry_CountsUsers(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				require.NoError(t, reg.Register(ctx, uuid.New(), "conn"))
			}
			count, err := reg.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, count)
		})
	}
}

func TestMemoryRegistry_Connections(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()
	ada := uuid.New()

	require.NoError(t, reg.Register(ctx, ada, "a"))
	require.NoError(t, reg.Register(ctx, ada, "b"))
	require.NoError(t, reg.Register(ctx, ada, "b"))
	assert.Equal(t, 2, reg.Connections(ada))
}

func TestRedisRegistry_ExpiresWithoutHeartbeat(t *testing.T) {
	reg := newRedisRegistry(t, time.Minute)
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	ada, bob := uuid.New(), uuid.New()
	require.NoError(t, reg.Register(ctx, ada, "a"))
	require.NoError(t, reg.Register(ctx, bob, "b"))

	now = now.Add(45 * time.Second)
	require.NoError(t, reg.Refresh(ctx, []uuid.UUID{ada}))

	now = now.Add(30 * time.Second)

	online, err := reg.IsOnline(ctx, ada)
	require.NoError(t, err)
	assert.True(t, online)

	online, err = reg.IsOnline(ctx, bob)
	require.NoError(t, err)
	assert.False(t, online, "bob missed the heartbeat")

	count, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The next refresh prunes bob from the set.
	require.NoError(t, reg.Refresh(ctx, []uuid.UUID{ada}))
	n, err := reg.client.ZCard(ctx, usersKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
