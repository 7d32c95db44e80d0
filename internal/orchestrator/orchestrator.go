package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	digest "github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"breedserve/internal/apperr"
	"breedserve/internal/breeds"
	"breedserve/pkg/types"
)

// ProbeRunner runs one probe round. *Prober implements it.
type ProbeRunner interface {
	Probe(ctx context.Context) ProbeResult
}

// Config wires an Orchestrator.
type Config struct {
	Prober ProbeRunner

	// Remote is used when the probe selects the remote host; may be nil.
	Remote Backend

	// Local builds the embedded fallback; may be nil to disable it.
	Local LocalFactory

	// CallTimeout bounds each backend call. Zero means no extra bound.
	CallTimeout time.Duration

	// CacheSize enables an LRU of results keyed by image digest; 0 disables.
	CacheSize int

	// Species resolves breeds to species when a backend cannot; nil uses
	// the default table.
	Species *breeds.SpeciesTable

	Log zerolog.Logger
}

// BreedResult is a post-processed breed prediction.
type BreedResult struct {
	Predictions []types.BreedPrediction `json:"predictions"`
	Crossbreed  bool                    `json:"crossbreed"`
	Model       string                  `json:"model,omitempty"`
	Backend     BackendKind             `json:"backend"`
	Cached      bool                    `json:"cached,omitempty"`
}

// Top returns the highest ranked prediction.
func (r BreedResult) Top() types.BreedPrediction {
	if len(r.Predictions) == 0 {
		return types.BreedPrediction{Label: breeds.Unknown}
	}
	return r.Predictions[0]
}

// Orchestrator routes predictions to the selected backend. It never invents
// a result: every failure surfaces as a classified error.
type Orchestrator struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	handle BackendHandle
	probe  ProbeResult
	probed bool
	local  *localBackend

	sf    singleflight.Group
	cache *lru.Cache[digest.Digest, BreedResult]
}

// New builds an Orchestrator. No probing happens until Init or the first call.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Prober == nil {
		return nil, errors.New("orchestrator: prober is required")
	}
	if cfg.Species == nil {
		t := breeds.DefaultSpeciesTable
		cfg.Species = &t
	}
	o := &Orchestrator{cfg: cfg, log: cfg.Log, handle: BackendHandle{Kind: KindNone}}
	if cfg.CacheSize > 0 {
		c, err := lru.New[digest.Digest, BreedResult](cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		o.cache = c
	}
	return o, nil
}

// Init runs the startup probe.
func (o *Orchestrator) Init(ctx context.Context) BackendHandle { return o.Reprobe(ctx) }

// Handle returns the current backend handle.
func (o *Orchestrator) Handle() BackendHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handle
}

// LastProbe returns the most recent probe result.
func (o *Orchestrator) LastProbe() ProbeResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.probe
}

// Reprobe probes again and reselects. Concurrent callers share one probe.
func (o *Orchestrator) Reprobe(ctx context.Context) BackendHandle {
	v, _, _ := o.sf.Do("probe", func() (any, error) {
		res := o.cfg.Prober.Probe(ctx)
		kind := Select(res)
		o.mu.Lock()
		defer o.mu.Unlock()
		prev := o.handle.Kind
		o.probe, o.probed = res, true
		o.handle.LastProbedAt = res.ProbedAt
		if kind != prev {
			o.handle.Kind = kind
			o.handle.ConsecutiveFailures = 0
			o.log.Info().Str("from", string(prev)).Str("to", string(kind)).Msg("backend selected")
		}
		return o.handle, nil
	})
	return v.(BackendHandle)
}

func (o *Orchestrator) current(ctx context.Context) BackendHandle {
	o.mu.Lock()
	probed, h := o.probed, o.handle
	o.mu.Unlock()
	if !probed {
		return o.Reprobe(ctx)
	}
	return h
}

func (o *Orchestrator) backend(kind BackendKind) (Backend, error) {
	switch kind {
	case KindRemote:
		if o.cfg.Remote != nil {
			return o.cfg.Remote, nil
		}
	case KindLocal:
		return o.localBackend()
	}
	return nil, apperr.New(apperr.BackendUnreachable, "no inference backend is reachable")
}

func (o *Orchestrator) localBackend() (Backend, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.local != nil {
		return o.local, nil
	}
	if o.cfg.Local == nil || o.probe.LocalPath == "" {
		return nil, apperr.New(apperr.BackendUnreachable, "no local model artifact")
	}
	e, err := o.cfg.Local(o.probe.LocalPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnreachable, err, "start embedded session")
	}
	o.log.Info().Str("path", o.probe.LocalPath).Msg("embedded session started")
	o.local = &localBackend{e: e}
	return o.local, nil
}

func (o *Orchestrator) record(kind BackendKind, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handle.Kind != kind {
		return
	}
	if err == nil {
		o.handle.ConsecutiveFailures = 0
		return
	}
	o.handle.ConsecutiveFailures++
}

// returnImmediately is true for failures a retry on another backend cannot
// fix: the chosen backend is alive but loading, or the input is bad.
func returnImmediately(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.ModelNotReady, apperr.InvalidInput:
		return true
	}
	return errors.Is(err, context.Canceled)
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// call runs fn on the current backend; on a retryable failure it re-probes
// once and retries once.
func (o *Orchestrator) call(ctx context.Context, fn func(context.Context, Backend) error) (BackendKind, error) {
	h := o.current(ctx)
	err := o.attempt(ctx, h.Kind, fn)
	if err == nil || returnImmediately(err) || ctx.Err() != nil {
		return h.Kind, err
	}
	o.log.Warn().Err(err).Str("backend", string(h.Kind)).Msg("backend call failed; re-probing")
	h = o.Reprobe(ctx)
	if err2 := o.attempt(ctx, h.Kind, fn); err2 != nil {
		if apperr.KindOf(err2) == "" {
			err2 = apperr.Wrap(apperr.InferenceFailure, err2, "backend %s", h.Kind)
		}
		return h.Kind, err2
	}
	return h.Kind, nil
}

func (o *Orchestrator) attempt(ctx context.Context, kind BackendKind, fn func(context.Context, Backend) error) error {
	b, err := o.backend(kind)
	if err != nil {
		return err
	}
	cctx, cancel := o.withTimeout(ctx)
	defer cancel()
	err = fn(cctx, b)
	if err != nil && apperr.KindOf(err) == "" && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = apperr.Wrap(apperr.BackendUnreachable, err, "backend %s timed out", kind)
	}
	o.record(kind, err)
	return err
}

// PredictBreed ranks breeds for img and flags crossbreeds.
func (o *Orchestrator) PredictBreed(ctx context.Context, img []byte) (BreedResult, error) {
	if len(img) == 0 {
		return BreedResult{}, apperr.New(apperr.InvalidInput, "empty image")
	}
	key := digest.FromBytes(img)
	if o.cache != nil {
		if r, ok := o.cache.Get(key); ok {
			r.Predictions = append([]types.BreedPrediction(nil), r.Predictions...)
			r.Cached = true
			return r, nil
		}
	}
	var resp types.PredictResponse
	kind, err := o.call(ctx, func(ctx context.Context, b Backend) error {
		r, err := b.PredictBreed(ctx, img)
		if err != nil {
			return err
		}
		if len(r.Predictions) == 0 {
			return apperr.New(apperr.InferenceFailure, "backend returned no predictions")
		}
		resp = r
		return nil
	})
	if err != nil {
		return BreedResult{}, err
	}
	res := BreedResult{
		Predictions: resp.Predictions,
		Crossbreed:  breeds.IsCrossbreed(resp.Predictions),
		Model:       resp.Model,
		Backend:     kind,
	}
	if o.cache != nil {
		cp := res
		cp.Predictions = append([]types.BreedPrediction(nil), res.Predictions...)
		o.cache.Add(key, cp)
	}
	return res, nil
}

// DetectSpecies classifies img. Backends without a species endpoint are
// answered from the top breed and the species table.
func (o *Orchestrator) DetectSpecies(ctx context.Context, img []byte) (types.SpeciesResult, error) {
	if len(img) == 0 {
		return types.SpeciesResult{}, apperr.New(apperr.InvalidInput, "empty image")
	}
	var out types.SpeciesResult
	_, err := o.call(ctx, func(ctx context.Context, b Backend) error {
		r, err := b.DetectSpecies(ctx, img)
		if errors.Is(err, ErrNoSpeciesEndpoint) {
			p, perr := b.PredictBreed(ctx, img)
			if perr != nil {
				return perr
			}
			if len(p.Predictions) == 0 {
				return apperr.New(apperr.InferenceFailure, "backend returned no predictions")
			}
			out = o.cfg.Species.SpeciesFromPredictions(p.Predictions)
			return nil
		}
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

// Close releases the embedded session, if one was started.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	l := o.local
	o.local = nil
	o.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.close()
}
