package tokencache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "kcadmin:token"

// Redis shares one admin token across instances through a Redis key.
// The key's TTL tracks the token expiry, so a miss after expiry is
// handled by Redis itself.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a Redis-backed token cache. key may be empty, in
// which case a default is used; set it when several deployments share
// one Redis database.
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = defaultRedisKey
	}
	return &Redis{
		client: client,
		key:    key,
	}
}

// Get returns the shared token. A missing key reports a cache miss with
// a nil error.
func (r *Redis) Get(ctx context.Context) (string, time.Time, error) {
	vals, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, fmt.Errorf("redis token lookup failed: %w", err)
	}
	token := vals["token"]
	if token == "" {
		return "", time.Time{}, nil
	}

	expiresUnix, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return "", time.Time{}, nil
	}
	return token, time.Unix(expiresUnix, 0), nil
}

// Put stores the token with a TTL matching its expiry.
func (r *Redis) Put(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key, map[string]any{
		"token":      token,
		"expires_at": expiresAt.Unix(),
	})
	pipe.Expire(ctx, r.key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis token store failed: %w", err)
	}
	return nil
}
