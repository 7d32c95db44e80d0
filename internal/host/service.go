// Package host is the inference host: it owns the model lifecycle, admits
// requests one forward pass at a time and answers breed and species
// queries. The HTTP layer and the orchestrator's local backend both call it.
package host

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"breedserve/internal/breeds"
	"breedserve/internal/inference"
	"breedserve/internal/lifecycle"
	"breedserve/pkg/types"
)

// Lifecycle is the read side of lifecycle.Manager plus manual retry.
type Lifecycle interface {
	Model() (*inference.Model, error)
	Snapshot() lifecycle.Snapshot
	Status() types.StatusResponse
	Ready() bool
	Trigger() bool
}

// Observer receives per-call inference outcomes, e.g. for metrics.
type Observer interface {
	ObserveInference(op string, d time.Duration, err error)
}

// Service answers inference requests against the lifecycle's model.
type Service struct {
	lc   Lifecycle
	exec *inference.Executor
	adm  *inference.Admission
	obs  Observer
	log  zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithObserver installs an inference observer.
func WithObserver(o Observer) Option { return func(s *Service) { s.obs = o } }

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// New builds a Service. A nil executor or admission gets defaults.
func New(lc Lifecycle, exec *inference.Executor, adm *inference.Admission, opts ...Option) *Service {
	if exec == nil {
		exec = inference.NewExecutor()
	}
	if adm == nil {
		adm = inference.NewAdmission(0, 0)
	}
	s := &Service{lc: lc, exec: exec, adm: adm, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PredictBreed ranks the breeds for one image. A successful response always
// carries at least one prediction.
func (s *Service) PredictBreed(ctx context.Context, img []byte) (resp types.PredictResponse, err error) {
	defer s.observe("predict", time.Now(), &err)
	model, err := s.lc.Model()
	if err != nil {
		return resp, err
	}
	release, err := s.adm.Begin(ctx)
	if err != nil {
		return resp, err
	}
	defer release()
	preds, err := s.exec.Predict(ctx, model, img)
	if err != nil {
		return resp, err
	}
	return types.PredictResponse{
		Predictions: preds,
		Crossbreed:  breeds.IsCrossbreed(preds),
		Model:       filepath.Base(model.Path),
	}, nil
}

// DetectSpecies classifies the image as cattle, buffalo or non_animal.
func (s *Service) DetectSpecies(ctx context.Context, img []byte) (res types.SpeciesResult, err error) {
	defer s.observe("species", time.Now(), &err)
	model, err := s.lc.Model()
	if err != nil {
		return res, err
	}
	release, err := s.adm.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer release()
	return s.exec.Species(ctx, model, img)
}

func (s *Service) observe(op string, start time.Time, err *error) {
	if s.obs != nil {
		s.obs.ObserveInference(op, time.Since(start), *err)
	}
}

// Health is always served; the model state never makes the process unhealthy.
func (s *Service) Health() types.HealthResponse {
	snap := s.lc.Snapshot()
	return types.HealthResponse{
		ServiceUp:    true,
		Status:       "ok",
		ModelState:   string(snap.State),
		ModelLoaded:  snap.Loaded(),
		ModelLoading: snap.Loading,
		LastError:    snap.Err,
	}
}

// Status reports lifecycle detail plus the admission queue.
func (s *Service) Status() types.StatusResponse {
	st := s.lc.Status()
	st.QueueLen = s.adm.QueueLen()
	st.MaxQueueDepth = s.adm.MaxQueueDepth()
	return st
}

// Ready reports whether predictions can be served.
func (s *Service) Ready() bool { return s.lc.Ready() }

// Reload starts a new acquisition from uninitialized or failed.
func (s *Service) Reload() bool {
	ok := s.lc.Trigger()
	s.log.Info().Bool("started", ok).Msg("reload requested")
	return ok
}

// ModelState returns the lifecycle state name.
func (s *Service) ModelState() string { return string(s.lc.Snapshot().State) }
