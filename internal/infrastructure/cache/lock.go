package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when another holder owns the lock
var ErrLockNotObtained = errors.New("lock not obtained")

// Unlock releases a lock obtained from a Locker
type Unlock func(ctx context.Context) error

// Locker hands out short-lived named locks. Maintenance jobs use it so only
// one replica sweeps reservations or scans expiry at a time.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// RedisLocker is a Locker backed by bsm/redislock
type RedisLocker struct {
	client *redislock.Client
	prefix string
}

// NewRedisLocker creates a distributed locker on client
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "dairy:lock:"
	}
	return &RedisLocker{client: redislock.New(client), prefix: prefix}
}

// Obtain tries once; it does not wait for the current holder
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	lock, err := l.client.Obtain(ctx, l.prefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}

// LocalLocker is an in-process Locker for single-instance deployments and tests
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	now   func() time.Time
}

// NewLocalLocker creates an empty in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

// Obtain implements Locker
func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.held[key]; ok && l.now().Before(until) {
		return nil, ErrLockNotObtained
	}
	until := l.now().Add(ttl)
	l.held[key] = until
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// A lock that expired and was taken by someone else stays theirs
		if cur, ok := l.held[key]; ok && cur.Equal(until) {
			delete(l.held, key)
		}
		return nil
	}, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
