// Package lock provides a Redis-backed stock.Locker for deployments where
// several server processes write to the same database.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/warp/stock-ledger/stock"
)

const (
	DefaultTTL     = 30 * time.Second
	DefaultBackoff = 50 * time.Millisecond
	DefaultRetries = 40
)

// RedisLocker takes one redislock per key, in sorted order. A key still held
// elsewhere after the retry budget yields stock.ErrConcurrentModification.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	retries int
	prefix  string
	log     zerolog.Logger
}

type Option func(*RedisLocker)

func WithTTL(ttl time.Duration) Option { return func(l *RedisLocker) { l.ttl = ttl } }

func WithRetry(backoff time.Duration, retries int) Option {
	return func(l *RedisLocker) { l.backoff, l.retries = backoff, retries }
}

func WithPrefix(prefix string) Option { return func(l *RedisLocker) { l.prefix = prefix } }

func WithLogger(log zerolog.Logger) Option { return func(l *RedisLocker) { l.log = log } }

func NewRedisLocker(rdb redis.UniversalClient, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     DefaultTTL,
		backoff: DefaultBackoff,
		retries: DefaultRetries,
		prefix:  "lock:",
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connect dials Redis and verifies the connection with a PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       0,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (l *RedisLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	}

	held := make([]*redislock.Lock, 0, len(sorted))
	release := func() {
		// The request context may already be done; releasing must still happen.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.log.Warn().Err(err).Str("key", held[i].Key()).Msg("failed to release redis lock")
			}
		}
	}

	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		lk, err := l.client.Obtain(ctx, l.prefix+key, l.ttl, opts)
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			l.log.Debug().Str("key", key).Msg("could not obtain redis lock")
			return nil, fmt.Errorf("%w: lock %s is held", stock.ErrConcurrentModification, key)
		}
		if err != nil {
			release()
			return nil, fmt.Errorf("failed to obtain redis lock %s: %w", key, err)
		}
		held = append(held, lk)
	}
	return release, nil
}
