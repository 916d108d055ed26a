package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	usersKey       = "presence:users"
	connsKeyPrefix = "presence:conns:"
)

// unregisterScript drops the connection and, when it was the last one,
// the user's entry in the online set.
var unregisterScript = redis.NewScript(`
redis.call('HDEL', KEYS[1], ARGV[1])
if redis.call('HLEN', KEYS[1]) == 0 then
	redis.call('ZREM', KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// RedisRegistry shares presence across API instances. Users live in a
// sorted set scored by their last heartbeat; entries older than the TTL
// count as offline, which covers instances that die without cleaning up.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &RedisRegistry{client: client, ttl: ttl, now: time.Now}
}

var _ Registry = (*RedisRegistry)(nil)

func connsKey(userID uuid.UUID) string {
	return connsKeyPrefix + userID.String()
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (r *RedisRegistry) Register(ctx context.Context, userID uuid.UUID, connID string) error {
	now := r.now()
	key := connsKey(userID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, connID, now.UnixMilli())
		pipe.Expire(ctx, key, r.ttl)
		pipe.ZAdd(ctx, usersKey, redis.Z{Score: score(now), Member: userID.String()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register presence: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, userID uuid.UUID, connID string) error {
	keys := []string{connsKey(userID), usersKey}
	if err := unregisterScript.Run(ctx, r.client, keys, connID, userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to unregister presence: %w", err)
	}
	return nil
}

func (r *RedisRegistry) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	s, err := r.client.ZScore(ctx, usersKey, userID.String()).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read presence: %w", err)
	}
	return s >= score(r.now().Add(-r.ttl)), nil
}

func (r *RedisRegistry) Count(ctx context.Context) (int, error) {
	from := strconv.FormatFloat(score(r.now().Add(-r.ttl)), 'f', -1, 64)
	n, err := r.client.ZCount(ctx, usersKey, from, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count presence: %w", err)
	}
	return int(n), nil
}

// Refresh bumps the heartbeat of the given users and prunes entries that
// nobody has refreshed within the TTL.
func (r *RedisRegistry) Refresh(ctx context.Context, userIDs []uuid.UUID) error {
	now := r.now()
	stale := strconv.FormatFloat(score(now.Add(-r.ttl)), 'f', -1, 64)

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.ZAdd(ctx, usersKey, redis.Z{Score: score(now), Member: id.String()})
			pipe.Expire(ctx, connsKey(id), r.ttl)
		}
		pipe.ZRemRangeByScore(ctx, usersKey, "-inf", "("+stale)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}
