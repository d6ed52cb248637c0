// Package ratelimit provides the two token buckets used by swr: the upstream
// limiter that workers block on before every fetch, and the API-level limiter
// that sheds reader load with 429s.
//
// Both wrap golang.org/x/time/rate. The limiter's token accounting is the one
// piece of state shared across all keys; the rate.Limiter is internally
// synchronized, so a single instance can be shared by any number of workers
// to bound the total upstream call rate.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket rate limiter.
type Limiter struct {
	l *rate.Limiter
}

// New creates a limiter refilling at perSecond tokens per second with the
// given burst capacity.
func New(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// NewPerPeriod creates a limiter allowing the given number of requests per
// named period (second, minute, hour, or day).
func NewPerPeriod(requests int, period string) (*Limiter, error) {
	d, err := periodDuration(period)
	if err != nil {
		return nil, err
	}
	perSecond := float64(requests) / d.Seconds()
	// Allow short bursts up to the full allowance for sub-minute periods,
	// but never fewer than one token.
	burst := requests
	if d > time.Minute {
		burst = requests / 10
	}
	return New(perSecond, burst), nil
}

// Acquire blocks until a token is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.l.Wait(ctx)
}

// Allow consumes a token if one is available without blocking.
func (l *Limiter) Allow() bool {
	return l.l.Allow()
}

func periodDuration(period string) (time.Duration, error) {
	switch period {
	case "second":
		return time.Second, nil
	case "minute":
		return time.Minute, nil
	case "hour":
		return time.Hour, nil
	case "day":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown rate limit period %q", period)
	}
}
