// Package lock serializes work on one key, such as a single loan, across
// goroutines or, with Redis, across processes.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker runs fn while holding the lock for key. Calls for different keys
// do not block each other.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Local is an in-process keyed mutex.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewLocal() *Local {
	return &Local{keys: make(map[string]*entry)}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.keys, key)
		}
		l.mu.Unlock()
	}()

	return fn(ctx)
}

// Redis is a distributed mutex built on redsync.
type Redis struct {
	rs         *redsync.Redsync
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{
		rs:         redsync.New(goredis.NewPool(client)),
		expiry:     30 * time.Second,
		tries:      100,
		retryDelay: 50 * time.Millisecond,
	}
}

func (r *Redis) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	m := r.rs.NewMutex("fredcredit:lock:"+key,
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(r.tries),
		redsync.WithRetryDelay(r.retryDelay),
	)
	if err := m.LockContext(ctx); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	defer func() { _, _ = m.UnlockContext(context.WithoutCancel(ctx)) }()

	return fn(ctx)
}
