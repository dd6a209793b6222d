package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Backoff counts consecutive failures of one retrying task.
type Backoff struct {
	cfg     BackoffConfig
	limit   int
	attempt int
	rng     *rand.Rand
}

// NewBackoff tracks up to limit consecutive failures.
func NewBackoff(cfg BackoffConfig, limit int) *Backoff {
	return &Backoff{
		cfg:   cfg,
		limit: limit,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fail records one failure and returns the delay before the next try.
// ok is false once the limit is exceeded.
func (b *Backoff) Fail() (delay time.Duration, attempt int, ok bool) {
	b.attempt++
	if b.limit > 0 && b.attempt > b.limit {
		return 0, b.attempt, false
	}
	return NextBackoffDelay(b.cfg, b.attempt, b.rng), b.attempt, true
}

// Succeed clears the failure streak.
func (b *Backoff) Succeed() {
	b.attempt = 0
}
