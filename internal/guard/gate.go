package guard

import (
	"context"
	"fmt"
	"time"
)

// Gate combines the in-flight flag and the hourly limit for one process.
type Gate struct {
	flags   InFlight
	limiter Limiter
	now     func() time.Time
}

func NewGate(flags InFlight, limiter Limiter) *Gate {
	if flags == nil {
		flags = NewMemoryFlags()
	}
	if limiter == nil {
		limiter = NewMemoryLimiter(0)
	}
	return &Gate{flags: flags, limiter: limiter, now: time.Now}
}

// Enter claims action. Metered actions also consume one unit of the hourly
// budget; the slot is returned before the budget is checked so a denied call
// never holds the flag.
func (g *Gate) Enter(ctx context.Context, action string, metered bool) (func(), error) {
	release, err := g.flags.Acquire(ctx, action)
	if err != nil {
		return nil, err
	}
	if !metered {
		return release, nil
	}
	allowed, used, resetAt, err := g.limiter.Allow(ctx, action, g.now())
	if err != nil {
		release()
		return nil, err
	}
	if !allowed {
		release()
		return nil, fmt.Errorf("%w: %s used %d, resets at %s", ErrRateLimited, action, used, resetAt.Format(time.RFC3339))
	}
	return release, nil
}
