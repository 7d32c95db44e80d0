// Package inference turns image bytes into ranked breed predictions with a
// loaded classifier: decoding and normalization, the forward pass through a
// runtime Session, softmax ranking, and the per-request memory cleanup the
// host relies on to stay under its memory ceiling.
package inference

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"github.com/rs/zerolog"

	"breedserve/internal/apperr"
	"breedserve/internal/breeds"
	"breedserve/pkg/types"
)

// Executor runs inference against a loaded Model. It holds no model state
// itself and is safe for concurrent use.
type Executor struct {
	species      breeds.SpeciesTable
	reclaimEvery uint64
	reclaim      func()
	maxPixels    int
	calls        atomic.Uint64
	log          zerolog.Logger
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithReclaimEvery forces a memory reclamation pass every n calls; 0 disables it.
func WithReclaimEvery(n int) ExecutorOption {
	return func(e *Executor) {
		if n < 0 {
			n = 0
		}
		e.reclaimEvery = uint64(n)
	}
}

// WithMaxPixels bounds the decoded size of uploads; 0 disables the check.
func WithMaxPixels(n int) ExecutorOption {
	return func(e *Executor) { e.maxPixels = n }
}

// WithSpeciesTable replaces the breed to species table.
func WithSpeciesTable(t breeds.SpeciesTable) ExecutorOption {
	return func(e *Executor) { e.species = t }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.log = l }
}

// NewExecutor returns an executor that reclaims memory after every call.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		species:      breeds.DefaultSpeciesTable,
		reclaimEvery: 1,
		reclaim:      debug.FreeOSMemory,
		maxPixels:    DefaultMaxPixels,
		log:          zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Predict returns up to TopK ranked predictions, never an empty slice
// without an error.
func (e *Executor) Predict(ctx context.Context, m *Model, img []byte) ([]types.BreedPrediction, error) {
	defer e.afterCall()
	if m == nil || m.Session == nil {
		return nil, apperr.NotReady("uninitialized", 0)
	}
	probs, err := e.forward(ctx, m, img)
	if err != nil {
		return nil, err
	}
	preds := Rank(probs, m.Meta.Label, TopK)
	if len(preds) == 0 {
		return nil, apperr.New(apperr.InferenceFailure, "model produced no scores")
	}
	return preds, nil
}

// Species returns the species of the top prediction using the species table.
func (e *Executor) Species(ctx context.Context, m *Model, img []byte) (types.SpeciesResult, error) {
	preds, err := e.Predict(ctx, m, img)
	if err != nil {
		return types.SpeciesResult{}, err
	}
	return e.species.SpeciesFromPredictions(preds), nil
}

func (e *Executor) forward(ctx context.Context, m *Model, img []byte) ([]float64, error) {
	decoded, format, err := Decode(img, e.maxPixels)
	if err != nil {
		return nil, err
	}
	input := Tensorize(decoded, m.Meta.Size(), m.Meta.Mean, m.Meta.Std)
	e.log.Debug().Str("format", format).Int("w", decoded.Bounds().Dx()).Int("h", decoded.Bounds().Dy()).Msg("image decoded")
	decoded = nil // release before the forward pass
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores, err := m.Session.Run(input)
	input = nil
	if err != nil {
		return nil, apperr.Wrap(apperr.InferenceFailure, err, "forward pass")
	}
	if len(scores) == 0 {
		return nil, apperr.New(apperr.InferenceFailure, "model produced no scores")
	}
	return Softmax(scores), nil
}

// afterCall drops per-request garbage back to the OS. Decoded images are
// several megabytes each, and the host runs under a tight memory limit.
func (e *Executor) afterCall() {
	n := e.calls.Add(1)
	if e.reclaimEvery > 0 && n%e.reclaimEvery == 0 && e.reclaim != nil {
		e.reclaim()
	}
}

// Calls reports how many inference calls were made.
func (e *Executor) Calls() uint64 { return e.calls.Load() }
