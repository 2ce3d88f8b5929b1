package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/place-resolver/internal/model"
)

// RedisClient is the subset of the go-redis client the cache needs.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis stores entries as JSON envelopes with a native key expiry.
type Redis struct {
	client RedisClient

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

type redisEnvelope struct {
	Value     []byte    `json:"v"`
	CreatedAt time.Time `json:"c"`
	ExpiresAt time.Time `json:"e"`
}

// NewRedis wraps a go-redis client.
func NewRedis(client RedisClient) *Redis {
	return &Redis{client: client, nowFunc: time.Now}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr string, db int) (*Redis, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, eris.Wrapf(err, "redis: ping %s", addr)
	}
	return NewRedis(client), client, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "redis: get")
	}

	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, eris.Wrap(err, "redis: decode entry")
	}
	entry := &model.CacheEntry{
		Key:       key,
		Value:     env.Value,
		CreatedAt: env.CreatedAt,
		ExpiresAt: env.ExpiresAt,
	}
	if entry.Expired(r.nowFunc()) {
		return nil, nil
	}
	return entry, nil
}

// Set implements Store. A non-positive ttl deletes the key.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return eris.Wrap(r.client.Del(ctx, key).Err(), "redis: del")
	}
	now := r.nowFunc().UTC()
	raw, err := json.Marshal(redisEnvelope{Value: value, CreatedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return eris.Wrap(err, "redis: encode entry")
	}
	return eris.Wrap(r.client.Set(ctx, key, raw, ttl).Err(), "redis: set")
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return eris.Wrap(r.client.Ping(ctx).Err(), "redis: ping")
}
