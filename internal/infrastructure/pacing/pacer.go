package pacing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum delay between successive calls to one endpoint.
// The first call passes immediately. A nil Pacer never waits.
type Pacer struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// New returns a pacer allowing one call per minDelay.
func New(minDelay time.Duration) *Pacer {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		delay:   minDelay,
	}
}

// Wait blocks until the next call is allowed or ctx is done. A wait that
// would outlast the ctx deadline fails at once with context.DeadlineExceeded.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return nil
}

// Delay reports the configured minimum delay.
func (p *Pacer) Delay() time.Duration {
	if p == nil {
		return 0
	}
	return p.delay
}
