package lifecycle

import (
	"context"
	"errors"
	"time"

	"breedserve/internal/apperr"
	"breedserve/internal/inference"
	"breedserve/pkg/types"
)

// Snapshot is a read-only projection of the lifecycle state.
type Snapshot struct {
	State          State
	Err            string
	Loading        bool
	Attempts       int
	Loads          uint64
	ArtifactPath   string
	ArtifactSize   int64
	ArtifactSource string
	ReadySince     time.Time
	Classes        int
}

// Loaded reports whether a model is servable.
func (s Snapshot) Loaded() bool { return s.State == StateReady }

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{
		State:          m.state,
		Err:            m.lastErr,
		Loading:        m.state.InFlight(),
		Attempts:       m.attempts,
		Loads:          m.loads,
		ArtifactPath:   m.artifactPath,
		ArtifactSize:   m.artifactSize,
		ArtifactSource: m.artifactSource,
		ReadySince:     m.readySince,
	}
	if m.model != nil {
		s.Classes = len(m.model.Meta.Classes)
	}
	return s
}

// Ready reports whether the model is loaded.
func (m *Manager) Ready() bool { return m.currentState() == StateReady }

// Model returns the loaded model or a classified error: ModelNotReady with a
// retry hint while a sequence runs or has not started, ModelFailed once the
// last sequence failed. In lazy mode the first call starts acquisition.
func (m *Manager) Model() (*inference.Model, error) {
	m.mu.RLock()
	st, model, lastErr := m.state, m.model, m.lastErr
	m.mu.RUnlock()
	switch st {
	case StateReady:
		return model, nil
	case StateFailed:
		return nil, &apperr.Error{Kind: apperr.ModelFailed, Message: "model failed to load: " + lastErr}
	case StateUninitialized:
		if m.cfg.Mode == StartLazy && m.Trigger() {
			return nil, apperr.NotReady(string(StateAcquiring), m.cfg.RetryAfter)
		}
	}
	return nil, apperr.NotReady(string(st), m.cfg.RetryAfter)
}

// WaitReady blocks until the model is ready, the last sequence failed, or
// ctx is done. A deadline that expires while a sequence is running or has
// not started yet is ModelNotReady with a retry hint, so callers can tell a
// loading model from an unavailable one; cancellation returns ctx.Err().
func (m *Manager) WaitReady(ctx context.Context) error {
	for {
		m.mu.RLock()
		st, lastErr, ch := m.state, m.lastErr, m.changed
		m.mu.RUnlock()
		switch st {
		case StateReady:
			return nil
		case StateFailed:
			return &apperr.Error{Kind: apperr.ModelFailed, Message: "model failed to load: " + lastErr}
		}
		select {
		case <-ch:
		case <-ctx.Done():
			st = m.currentState()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && (st == StateUninitialized || st.InFlight()) {
				e := apperr.NotReady(string(st), m.cfg.RetryAfter)
				e.Err = ctx.Err()
				return e
			}
			return ctx.Err()
		}
	}
}

// Status fills the lifecycle part of the /status payload.
func (m *Manager) Status() types.StatusResponse {
	s := m.Snapshot()
	now := m.cfg.Now()
	resp := types.StatusResponse{
		State:          string(s.State),
		LastError:      s.Err,
		Attempts:       s.Attempts,
		LoadsTotal:     s.Loads,
		ArtifactPath:   s.ArtifactPath,
		ArtifactSize:   s.ArtifactSize,
		ArtifactSource: s.ArtifactSource,
		Classes:        s.Classes,
		UptimeSeconds:  int64(now.Sub(m.startedAt).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if !s.ReadySince.IsZero() {
		resp.ReadySinceUnix = s.ReadySince.Unix()
	}
	return resp
}

// Mode reports the configured start mode.
func (m *Manager) Mode() StartMode { return m.cfg.Mode }
