package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"breedserve/internal/apperr"
	"breedserve/internal/inference"
)

// Manager drives the model through acquisition, validation and loading. It
// is the only writer of the lifecycle state.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu             sync.RWMutex
	state          State
	model          *inference.Model
	lastErr        string
	attempts       int
	loads          uint64
	artifactPath   string
	artifactSize   int64
	artifactSource string
	readySince     time.Time
	startedAt      time.Time
	// changed is closed and replaced on every transition.
	changed chan struct{}

	// loading collapses concurrent triggers into one running sequence.
	loading atomic.Bool
	started atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Manager in StateUninitialized. Nothing runs until Start,
// Trigger, or (in lazy mode) the first Model call.
func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		log:       cfg.Log,
		state:     StateUninitialized,
		startedAt: cfg.Now(),
		changed:   make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start arms the configured start mode. In delayed mode acquisition begins
// after the warm-up delay; in lazy mode Start only records that the process
// is up. Start returns immediately and is idempotent.
func (m *Manager) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	if m.cfg.Mode != StartDelayed {
		m.log.Info().Str("mode", string(m.cfg.Mode)).Msg("model acquisition deferred to first request")
		return
	}
	m.log.Info().Dur("delay", m.cfg.WarmupDelay).Msg("model acquisition scheduled")
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.cfg.Sleep(m.ctx, m.cfg.WarmupDelay); err != nil {
			return
		}
		m.Trigger()
	}()
}

// Trigger starts an acquisition sequence from uninitialized or failed. It
// reports whether a new sequence started; false means one is already
// running, the model is ready, or the manager is closed.
func (m *Manager) Trigger() bool {
	if m.ctx.Err() != nil {
		return false
	}
	if !m.loading.CompareAndSwap(false, true) {
		return false
	}
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()
	if !CanTransition(st, StateAcquiring) || st == StateAcquiring {
		m.loading.Store(false)
		return false
	}
	// Leave uninitialized or failed before returning, so a caller that waits
	// right after Trigger sees the new sequence, not the previous failure.
	m.transition(StateAcquiring, map[string]any{"attempt": 1})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(m.ctx)
	}()
	return true
}

// Close cancels any running sequence, waits for it and releases the model.
func (m *Manager) Close() error {
	m.cancel()
	m.wg.Wait()
	m.mu.Lock()
	model := m.model
	m.model = nil
	m.mu.Unlock()
	return model.Close()
}

func (m *Manager) run(ctx context.Context) {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()

	path, size, source, err := m.acquire(ctx)
	if err != nil {
		m.fail(err)
		return
	}
	m.mu.Lock()
	m.artifactPath, m.artifactSize, m.artifactSource = path, size, source
	m.mu.Unlock()
	m.transition(StateLoading, nil)

	start := time.Now()
	model, err := m.cfg.Loader.Load(ctx, path)
	if err != nil {
		m.fail(err)
		return
	}
	m.mu.Lock()
	old := m.model
	m.model = model
	m.readySince = m.cfg.Now()
	m.loads++
	m.lastErr = ""
	m.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	m.transition(StateReady, map[string]any{"path": path, "size": size})
	m.cfg.Events.Publish(Event{Name: EventReady, From: StateLoading, To: StateReady, Fields: map[string]any{
		"path": path, "size": size, "source": source, "load_ms": time.Since(start).Milliseconds(),
	}})
	m.log.Info().Str("path", path).Int64("size", size).Dur("load", time.Since(start)).Msg("model ready")
}

// acquire runs the bounded acquire/validate loop and returns the committed
// artifact path.
func (m *Manager) acquire(ctx context.Context) (string, int64, string, error) {
	policy := m.cfg.Retry
	for attempt := 1; ; attempt++ {
		m.mu.Lock()
		m.attempts = attempt
		m.mu.Unlock()
		if attempt > 1 {
			m.transition(StateAcquiring, map[string]any{"attempt": attempt})
		}

		path, size, source, err := m.attempt(ctx)
		if err == nil {
			return path, size, source, nil
		}
		if ctx.Err() != nil {
			return "", 0, "", ctx.Err()
		}
		m.mu.Lock()
		m.lastErr = err.Error()
		m.mu.Unlock()
		m.cfg.Events.Publish(Event{Name: EventAttemptFailed, From: m.currentState(), Fields: map[string]any{
			"attempt": attempt, "error": err.Error(),
		}})
		// A missing source will not appear by waiting.
		if apperr.IsKind(err, apperr.ModelFailed) || attempt >= policy.MaxAttempts {
			return "", 0, "", err
		}
		delay := policy.Delay(attempt)
		m.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", policy.MaxAttempts).Dur("backoff", delay).Msg("artifact acquisition failed")
		if err := m.cfg.Sleep(ctx, delay); err != nil {
			return "", 0, "", err
		}
	}
}

func (m *Manager) attempt(ctx context.Context) (string, int64, string, error) {
	store := m.cfg.Store
	st, err := store.Stage(ctx)
	if err != nil {
		return "", 0, "", err
	}
	m.transition(StateValidating, map[string]any{"source": st.Source, "existing": st.Existing})
	size, err := store.Check(st)
	if err != nil {
		if derr := store.Discard(st); derr != nil {
			err = errors.Join(err, derr)
		}
		return "", 0, "", err
	}
	path, err := store.Commit(st)
	if err != nil {
		return "", 0, "", err
	}
	return path, size, st.Source, nil
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
	m.transition(StateFailed, map[string]any{"error": err.Error()})
	m.cfg.Events.Publish(Event{Name: EventFailed, To: StateFailed, Fields: map[string]any{"error": err.Error()}})
	m.log.Error().Err(err).Msg("model unavailable")
}

// transition moves to next and wakes waiters. Disallowed moves are dropped.
func (m *Manager) transition(next State, fields map[string]any) bool {
	m.mu.Lock()
	prev := m.state
	if !CanTransition(prev, next) {
		m.mu.Unlock()
		m.log.Error().Str("from", string(prev)).Str("to", string(next)).Msg("invalid lifecycle transition")
		return false
	}
	m.state = next
	if next.Terminal() {
		// released with the state change so a waiter woken here can trigger again
		m.loading.Store(false)
	}
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
	m.cfg.Events.Publish(Event{Name: EventTransition, From: prev, To: next, Fields: fields})
	m.log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("lifecycle transition")
	return true
}

func (m *Manager) currentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
