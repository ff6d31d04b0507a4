package usecase

import (
	"math/rand/v2"
	"time"
)

// Backoff is exponential with jitter: Base * 2^(attempt-1), capped at Max, then
// scaled by a random factor in [1-Jitter, 1+Jitter]. A zero Base disables delays.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 5 * time.Second, Max: 5 * time.Minute, Jitter: 0.2}
}

// Delay returns the wait before redelivering after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 || attempt <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		f := 1 + b.Jitter*(2*rand.Float64()-1)
		d = time.Duration(float64(d) * f)
	}
	return d
}
