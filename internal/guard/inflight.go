// Package guard keeps user actions from overlapping and caps how often the
// model-backed ones may run.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrBusy = errors.New("action already in progress")

// InFlight hands out one slot per action. Acquire fails with ErrBusy while the
// previous holder has not released.
type InFlight interface {
	Acquire(ctx context.Context, action string) (release func(), err error)
}

type MemoryFlags struct {
	mu     sync.Mutex
	active map[string]bool
}

func NewMemoryFlags() *MemoryFlags {
	return &MemoryFlags{active: map[string]bool{}}
}

var _ InFlight = (*MemoryFlags)(nil)

func (f *MemoryFlags) Acquire(_ context.Context, action string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active[action] {
		return nil, fmt.Errorf("%w: %s", ErrBusy, action)
	}
	f.active[action] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.active, action)
			f.mu.Unlock()
		})
	}, nil
}

func (f *MemoryFlags) Active(action string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[action]
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisFlags shares flags between processes. The TTL bounds how long a crashed
// holder can block an action.
type RedisFlags struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisFlags(rdb *redis.Client, prefix string, ttl time.Duration) *RedisFlags {
	if prefix == "" {
		prefix = "formgenie:inflight:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisFlags{redis: rdb, prefix: prefix, ttl: ttl}
}

var _ InFlight = (*RedisFlags)(nil)

func (f *RedisFlags) Acquire(ctx context.Context, action string) (func(), error) {
	key := f.prefix + action
	token := uuid.NewString()
	ok, err := f.redis.SetNX(ctx, key, token, f.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("inflight setnx: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, action)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = releaseScript.Run(context.WithoutCancel(ctx), f.redis, []string{key}, token).Err()
		})
	}, nil
}
