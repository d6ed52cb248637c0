package client

import "time"

// Backoff describes the geometric polling schedule used while waiting for a
// refresh task to resolve.
type Backoff struct {
	// Initial is the first delay.
	// Default: 2s
	Initial time.Duration

	// Multiplier grows the delay after each attempt.
	// Default: 1.5
	Multiplier float64

	// Max caps the delay.
	// Default: 10s
	Max time.Duration

	// MaxAttempts bounds the number of polls before giving up.
	// Default: 30
	MaxAttempts int
}

// DefaultBackoff returns the stock polling schedule: 2s, 3s, 4.5s, 6.75s,
// then 10s capped, for up to 30 attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     2 * time.Second,
		Multiplier:  1.5,
		Max:         10 * time.Second,
		MaxAttempts: 30,
	}
}

func (b *Backoff) applyDefaults() {
	if b.Initial <= 0 {
		b.Initial = 2 * time.Second
	}
	if b.Multiplier <= 1 {
		b.Multiplier = 1.5
	}
	if b.Max <= 0 {
		b.Max = 10 * time.Second
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 30
	}
}

// Delay returns the wait before poll number attempt (zero-based). The
// schedule is deterministic so tests can assert it.
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= b.Multiplier
		if time.Duration(d) >= b.Max {
			return b.Max
		}
	}
	if time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}
