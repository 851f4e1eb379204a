package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("hourly limit reached")

// Limiter counts calls per action in fixed hourly windows.
type Limiter interface {
	Allow(ctx context.Context, action string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error)
}

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int64
}

// NewRateLimiter allows limit calls per action per hour; limit <= 0 disables it.
func NewRateLimiter(rdb *redis.Client, prefix string, limit int64) *RateLimiter {
	if prefix == "" {
		prefix = "formgenie:ratelimit:"
	}
	return &RateLimiter{redis: rdb, prefix: prefix, limit: limit}
}

var _ Limiter = (*RateLimiter)(nil)

func (r *RateLimiter) Allow(ctx context.Context, action string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error) {
	windowStart, windowEnd := window(now)
	if r.limit <= 0 {
		return true, 0, windowEnd, nil
	}
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("%s%s:%s", r.prefix, action, windowStart.Format("2006010215"))
	res, err := incrWithTTLScript.Run(ctx, r.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= r.limit, res, windowEnd, nil
}

type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int64
	counts map[string]int64
}

func NewMemoryLimiter(limit int64) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, counts: map[string]int64{}}
}

var _ Limiter = (*MemoryLimiter)(nil)

func (m *MemoryLimiter) Allow(_ context.Context, action string, now time.Time) (bool, int64, time.Time, error) {
	windowStart, windowEnd := window(now)
	if m.limit <= 0 {
		return true, 0, windowEnd, nil
	}
	key := action + ":" + windowStart.Format("2006010215")
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.counts {
		if k != key && strings.HasPrefix(k, action+":") {
			delete(m.counts, k)
		}
	}
	m.counts[key]++
	used := m.counts[key]
	return used <= m.limit, used, windowEnd, nil
}

func window(now time.Time) (time.Time, time.Time) {
	start := now.UTC().Truncate(time.Hour)
	return start, start.Add(time.Hour)
}
