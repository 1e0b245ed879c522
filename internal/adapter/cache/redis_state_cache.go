package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
	"github.com/smallbiznis/dexgate/internal/repository"
)

const stateKeyPrefix = "auth:state:"

// RedisStateCache implements repository.StateCache backed by Redis.
type RedisStateCache struct {
	client redis.UniversalClient
}

var _ repository.StateCache = (*RedisStateCache)(nil)

// NewRedisStateCache constructs a Redis-backed state cache.
func NewRedisStateCache(client redis.UniversalClient) *RedisStateCache {
	return &RedisStateCache{client: client}
}

// Put stores the encoded auth state under its state id with TTL.
func (c *RedisStateCache) Put(ctx context.Context, stateID string, state authdomain.AuthState, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := c.client.Set(ctx, stateKey(stateID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Take removes and returns the auth state in one round trip. GETDEL is the
// atomicity boundary that keeps the state single-use under concurrent
// callbacks; it must not be weakened to a GET followed by a DEL.
func (c *RedisStateCache) Take(ctx context.Context, stateID string) (*authdomain.AuthState, error) {
	bytes, err := c.client.GetDel(ctx, stateKey(stateID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("take state: %w", err)
	}
	var state authdomain.AuthState
	if err := json.Unmarshal(bytes, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

func stateKey(stateID string) string {
	return stateKeyPrefix + stateID
}
