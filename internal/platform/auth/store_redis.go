package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "intake:session:"

// RedisStore keeps session ids as keys that expire with the session, so
// several server instances share logins.
type RedisStore struct {
	c *redis.Client
}

func NewRedisStore(c *redis.Client) *RedisStore { return &RedisStore{c: c} }

// NewRedisClient connects using a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *RedisStore) Save(ctx context.Context, id string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.c.Set(ctx, sessionKeyPrefix+id, expiresAt.Unix(), ttl).Err()
}

func (r *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.c.Exists(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.c.Del(ctx, sessionKeyPrefix+id).Err()
}

// Ping reports whether redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}
