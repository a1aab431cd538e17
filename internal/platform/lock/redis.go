package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-taken by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a cross-instance lock stored under one key with a TTL.
// The TTL bounds how long a crashed holder can block other instances.
type Redis struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// NewRedis creates a lock on key. ttl must exceed the longest run.
func NewRedis(client redis.Cmdable, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl}
}

// TryAcquire sets the key if absent.
func (r *Redis) TryAcquire(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" {
		return false, nil
	}

	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis set lock %s: %w", r.key, err)
	}

	if ok {
		r.token = token
	}

	return ok, nil
}

// Release deletes the key if this holder still owns it.
func (r *Redis) Release(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token == "" {
		return ErrNotHeld
	}

	token := r.token
	r.token = ""

	deleted, err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release lock %s: %w", r.key, err)
	}

	if deleted == 0 {
		return fmt.Errorf("%w: %s expired before release", ErrNotHeld, r.key)
	}

	return nil
}

// NewRedisClient parses url and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
