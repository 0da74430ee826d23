package broadcast

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces delivery attempts. Wait blocks until the next attempt may start.
type Limiter interface {
	Wait(ctx context.Context) error
}

// IntervalLimiter lets one attempt through immediately and then at most one
// per interval. A non-positive interval never blocks.
type IntervalLimiter struct {
	lim *rate.Limiter
}

func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	lim := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		lim = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &IntervalLimiter{lim: lim}
}

func (l *IntervalLimiter) Wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return nil
	}
	return l.lim.Wait(ctx)
}
