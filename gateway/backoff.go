package gateway

import (
	"math"
	"math/rand"
	"time"
)

// Backoff shapes the wait between reconnect attempts: bounded exponential
// growth with optional jitter. MaxAttempts zero keeps retrying forever.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	Multiplier  float64
	Jitter      bool
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:       time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Delay computes the wait before attempt n, counted from zero.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(base) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter {
		d += rand.Float64() * d * 0.25
	}
	return time.Duration(d)
}
