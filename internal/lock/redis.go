package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries our token.
// KEYS[1] = lock key
// ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	defaultRedisTTL   = 30 * time.Second
	defaultRedisRetry = 25 * time.Millisecond
)

// Redis locks keys across processes with SET NX PX. A holder that dies keeps
// the key until TTL expires.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedis(client redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	if prefix == "" {
		prefix = "veribond:lock:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, retry: defaultRedisRetry}
}

// NewRedisClient opens a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))
	release := func() {
		// Release must not be skipped because the caller's ctx ended.
		bg := context.Background()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(bg, r.client, []string{held[i]}, token).Err()
		}
	}
	for _, k := range keys {
		key := r.prefix + k
		if err := r.acquire(ctx, key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
