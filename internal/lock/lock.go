package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThiagoRGoveia/stocks-dossier/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another run already holds the lock.
var ErrLocked = errors.New("another loader run holds the lock")

// Locker guards a whole loader run.
type Locker interface {
	Acquire(ctx context.Context, owner string) (release func(context.Context) error, err error)
}

// New returns a Redis backed locker, or a no-op locker when no Redis address is configured.
func New(ctx context.Context, cfg config.LockConfig) (Locker, func() error, error) {
	if !cfg.Enabled() {
		return NoopLocker{}, func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}

	return NewRedisLocker(client, cfg.Key, cfg.TTL), client.Close, nil
}

type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, owner string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// releaseScript deletes the key only while it still belongs to the caller, so an expired lock
// picked up by a later run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, owner string) (func(context.Context) error, error) {
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		holder, _ := l.client.Get(ctx, l.key).Result()
		return nil, fmt.Errorf("%w: key %s held by %s", ErrLocked, l.key, holder)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", l.key, err)
		}
		return nil
	}, nil
}
