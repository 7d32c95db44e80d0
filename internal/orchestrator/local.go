package orchestrator

import (
	"context"

	"breedserve/pkg/types"
)

// Embedded is an in-process inference session used when no remote host is
// reachable. It owns its own lifecycle, independent of any host.
type Embedded struct {
	Service Backend
	// Lifecycle is started by Trigger, which must be idempotent, and
	// WaitReady must report a deadline hit while loading as ModelNotReady.
	Lifecycle interface {
		Trigger() bool
		WaitReady(ctx context.Context) error
	}
	// Close releases the session; may be nil.
	Close func() error
}

// LocalFactory builds an embedded session for the artifact at path.
type LocalFactory func(path string) (*Embedded, error)

// localBackend starts the embedded lifecycle on use and waits for it within
// the caller's deadline. Trigger is a no-op while a sequence runs or the model
// is ready, so calling it every time restarts only a failed lifecycle.
type localBackend struct {
	e *Embedded
}

func (l *localBackend) wait(ctx context.Context) error {
	if l.e.Lifecycle == nil {
		return nil
	}
	l.e.Lifecycle.Trigger()
	return l.e.Lifecycle.WaitReady(ctx)
}

func (l *localBackend) PredictBreed(ctx context.Context, img []byte) (types.PredictResponse, error) {
	if err := l.wait(ctx); err != nil {
		return types.PredictResponse{}, err
	}
	return l.e.Service.PredictBreed(ctx, img)
}

func (l *localBackend) DetectSpecies(ctx context.Context, img []byte) (types.SpeciesResult, error) {
	if err := l.wait(ctx); err != nil {
		return types.SpeciesResult{}, err
	}
	return l.e.Service.DetectSpecies(ctx, img)
}

func (l *localBackend) close() error {
	if l.e.Close == nil {
		return nil
	}
	return l.e.Close()
}
