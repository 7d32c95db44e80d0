package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"breedserve/internal/apperr"
	"breedserve/internal/artifact"
	"breedserve/internal/inference"
)

var errFetch = errors.New("connection reset")

// fakeStore scripts Stage/Check results per attempt.
type fakeStore struct {
	mu        sync.Mutex
	stageErrs []error // consumed in order; nil entries succeed
	checkErrs []error
	stages    atomic.Int32
	discards  atomic.Int32
	commits   atomic.Int32
	// gate, when set, blocks Stage until closed.
	gate chan struct{}
}

func (f *fakeStore) next(list *[]error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(*list) == 0 {
		return nil
	}
	err := (*list)[0]
	*list = (*list)[1:]
	return err
}

func (f *fakeStore) Stage(ctx context.Context) (artifact.Staged, error) {
	f.stages.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return artifact.Staged{}, ctx.Err()
		}
	}
	if err := f.next(&f.stageErrs); err != nil {
		return artifact.Staged{}, err
	}
	return artifact.Staged{Path: "/tmp/.model.onnx.part", Source: "https://example.invalid/model.onnx"}, nil
}

func (f *fakeStore) Check(artifact.Staged) (int64, error) {
	if err := f.next(&f.checkErrs); err != nil {
		return 0, err
	}
	return 4096, nil
}

func (f *fakeStore) Commit(artifact.Staged) (string, error) {
	f.commits.Add(1)
	return "/models/model.onnx", nil
}

func (f *fakeStore) Discard(artifact.Staged) error {
	f.discards.Add(1)
	return nil
}

type fakeSession struct{}

func (fakeSession) Run([]float32) ([]float32, error) { return []float32{1}, nil }
func (fakeSession) Close() error { return nil }

type fakeLoader struct {
	errs  []error
	mu    sync.Mutex
	loads atomic.Int32
}

func (l *fakeLoader) Load(ctx context.Context, path string) (*inference.Model, error) {
	l.loads.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &inference.Model{Path: path, Meta: inference.DefaultMetadata(), Session: fakeSession{}}, nil
}

// recordSleep records requested delays without sleeping.
type recordSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordSleep) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func newTestManager(t *testing.T, store Acquirer, loader Loader, mode StartMode) (*Manager, *recordSleep, *MemoryPublisher) {
	t.Helper()
	rs := &recordSleep{}
	pub := NewMemoryPublisher()
	m := New(Config{
		Store:  store,
		Loader: loader,
		Mode:   mode,
		Retry:  RetryPolicy{MaxAttempts: 3, Base: 10 * time.Millisecond, Max: time.Second},
		Sleep:  rs.Sleep,
		Events: pub,
	})
	t.Cleanup(func() { _ = m.Close() })
	return m, rs, pub
}

// waitSettled waits for the running sequence to finish.
func waitSettled(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := m.WaitReady(ctx)
	if err != nil && !apperr.IsKind(err, apperr.ModelFailed) {
		t.Fatalf("sequence did not settle: %v", err)
	}
	// the loading flag is released after the final transition
	for m.loading.Load() {
		if ctx.Err() != nil {
			t.Fatalf("loading flag stuck")
		}
		time.Sleep(time.Millisecond)
	}
}
