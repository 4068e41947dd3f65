package rate

import (
	"context"
	"log/slog"
	"time"

	"github.com/AfshinJalili/rentabili/libs/metrics"
)

// Limiter counts hits per key in fixed windows. retryAfter is meaningful
// only when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}

// FallbackLimiter consults Primary and answers from Secondary whenever
// Primary errors, so a backend outage never leaves a route unlimited.
type FallbackLimiter struct {
	Name      string
	Primary   Limiter
	Secondary Limiter
	Logger    *slog.Logger
}

func NewFallback(name string, primary, secondary Limiter, logger *slog.Logger) *FallbackLimiter {
	return &FallbackLimiter{Name: name, Primary: primary, Secondary: secondary, Logger: logger}
}

func (f *FallbackLimiter) Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error) {
	allowed, retryAfter, err := f.Primary.Allow(ctx, key, now)
	if err == nil {
		return allowed, retryAfter, nil
	}

	metrics.RateLimitFallbacks.WithLabelValues(f.Name).Inc()
	if f.Logger != nil {
		f.Logger.Warn("rate limiter backend failed, using memory fallback",
			slog.String("limiter", f.Name),
			slog.Any("error", err),
		)
	}
	return f.Secondary.Allow(ctx, key, now)
}
