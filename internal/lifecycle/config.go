package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"breedserve/internal/artifact"
	"breedserve/internal/inference"
)

// StartMode decides when acquisition begins. Acquisition never runs
// synchronously at boot.
type StartMode string

const (
	// StartDelayed begins after WarmupDelay once Start is called.
	StartDelayed StartMode = "delayed"
	// StartLazy begins on the first Model call.
	StartLazy StartMode = "lazy"
)

// ParseStartMode accepts "delayed" (or "") and "lazy".
func ParseStartMode(s string) (StartMode, error) {
	switch StartMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", StartDelayed:
		return StartDelayed, nil
	case StartLazy:
		return StartLazy, nil
	}
	return "", fmt.Errorf("unknown start mode %q (want delayed or lazy)", s)
}

// Acquirer stages, validates and commits the artifact. *artifact.Store
// implements it.
type Acquirer interface {
	Stage(ctx context.Context) (artifact.Staged, error)
	Check(st artifact.Staged) (int64, error)
	Commit(st artifact.Staged) (string, error)
	Discard(st artifact.Staged) error
}

// Loader builds a servable model from a validated artifact.
// inference.ModelLoader implements it.
type Loader interface {
	Load(ctx context.Context, path string) (*inference.Model, error)
}

const (
	defaultWarmupDelay = 2 * time.Second
	defaultRetryAfter  = 5 * time.Second
)

// Config holds Manager dependencies and tunables.
type Config struct {
	Store  Acquirer
	Loader Loader
	Mode   StartMode
	// WarmupDelay applies to StartDelayed; a negative value means no delay.
	WarmupDelay time.Duration
	Retry       RetryPolicy
	// RetryAfter is the hint given to callers that find the model not ready.
	RetryAfter time.Duration
	Events     EventPublisher
	Log        zerolog.Logger
	// Sleep and Now are injectable for tests.
	Sleep SleepFunc
	Now   func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = StartDelayed
	}
	if c.WarmupDelay == 0 {
		c.WarmupDelay = defaultWarmupDelay
	}
	if c.WarmupDelay < 0 {
		c.WarmupDelay = 0
	}
	c.Retry = c.Retry.withDefaults()
	if c.RetryAfter <= 0 {
		c.RetryAfter = defaultRetryAfter
	}
	if c.Events == nil {
		c.Events = noopPublisher{}
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
