package lifecycle

import (
	"context"
	"time"
)

// RetryPolicy bounds acquisition attempts. Delay is exponential with a cap.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	Base        time.Duration `json:"base" yaml:"base" toml:"base"`
	Max         time.Duration `json:"max" yaml:"max" toml:"max"`
}

// DefaultRetryPolicy is 3 attempts starting at 2s, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Base: 2 * time.Second, Max: 30 * time.Second}
}

// Delay is the wait after the n-th failed attempt (1-based):
// min(Base*2^(n-1), Max).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 || p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 1; i < n; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	return p
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
