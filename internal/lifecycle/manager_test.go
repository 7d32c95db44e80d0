package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"breedserve/internal/apperr"
)

func TestHappyPathReachesReady(t *testing.T) {
	store := &fakeStore{}
	m, rs, pub := newTestManager(t, store, &fakeLoader{}, StartLazy)
	if s := m.Snapshot(); s.State != StateUninitialized || s.Loaded() {
		t.Fatalf("initial snapshot %+v", s)
	}
	if !m.Trigger() {
		t.Fatalf("trigger did not start")
	}
	waitSettled(t, m)

	s := m.Snapshot()
	if s.State != StateReady || s.ArtifactPath != "/models/model.onnx" || s.ArtifactSize != 4096 || s.Loads != 1 {
		t.Fatalf("snapshot %+v", s)
	}
	if s.ReadySince.IsZero() || s.Classes != 41 {
		t.Fatalf("ready timestamp/classes missing: %+v", s)
	}
	want := []State{StateAcquiring, StateValidating, StateLoading, StateReady}
	if diff := cmp.Diff(want, pub.Path()); diff != "" {
		t.Fatalf("path (-want +got):\n%s", diff)
	}
	if len(rs.Delays()) != 0 {
		t.Fatalf("unexpected backoff: %v", rs.Delays())
	}
	if _, err := m.Model(); err != nil {
		t.Fatalf("model: %v", err)
	}
	if m.Trigger() {
		t.Fatalf("trigger from ready must be refused")
	}
}

func TestConcurrentTriggersCollapse(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	loader := &fakeLoader{}
	m, _, _ := newTestManager(t, store, loader, StartLazy)

	var wg sync.WaitGroup
	started := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Model()
			if !apperr.IsKind(err, apperr.ModelNotReady) {
				t.Errorf("want ModelNotReady, got %v", err)
			}
			started <- m.Trigger()
		}()
	}
	wg.Wait()
	close(started)
	for ok := range started {
		if ok {
			t.Fatalf("a second sequence started while one was running")
		}
	}
	close(store.gate)
	waitSettled(t, m)
	if store.stages.Load() != 1 || loader.loads.Load() != 1 {
		t.Fatalf("stages=%d loads=%d, want exactly one", store.stages.Load(), loader.loads.Load())
	}
}

func TestTransientFailureRetriesWithBackoff(t *testing.T) {
	store := &fakeStore{stageErrs: []error{errFetch, errFetch}}
	m, rs, pub := newTestManager(t, store, &fakeLoader{}, StartLazy)
	m.Trigger()
	waitSettled(t, m)
	if !m.Ready() {
		t.Fatalf("state=%s err=%s", m.Snapshot().State, m.Snapshot().Err)
	}
	if diff := cmp.Diff([]time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rs.Delays()); diff != "" {
		t.Fatalf("delays (-want +got):\n%s", diff)
	}
	if m.Snapshot().Attempts != 3 {
		t.Fatalf("attempts=%d", m.Snapshot().Attempts)
	}
	want := []State{StateAcquiring, StateAcquiring, StateAcquiring, StateValidating, StateLoading, StateReady}
	if diff := cmp.Diff(want, pub.Path()); diff != "" {
		t.Fatalf("path (-want +got):\n%s", diff)
	}
}

func TestRetriesExhaustedFails(t *testing.T) {
	store := &fakeStore{stageErrs: []error{errFetch, errFetch, errFetch}}
	loader := &fakeLoader{}
	m, rs, _ := newTestManager(t, store, loader, StartLazy)
	m.Trigger()
	waitSettled(t, m)
	s := m.Snapshot()
	if s.State != StateFailed || s.Err == "" || s.Attempts != 3 {
		t.Fatalf("snapshot %+v", s)
	}
	if len(rs.Delays()) != 2 || loader.loads.Load() != 0 {
		t.Fatalf("delays=%v loads=%d", rs.Delays(), loader.loads.Load())
	}
	_, err := m.Model()
	if !apperr.IsKind(err, apperr.ModelFailed) {
		t.Fatalf("want ModelFailed, got %v", err)
	}
}

func TestCorruptArtifactDiscardedAndReacquired(t *testing.T) {
	corrupt := apperr.New(apperr.ArtifactCorrupt, "too small")
	store := &fakeStore{checkErrs: []error{corrupt}}
	m, _, pub := newTestManager(t, store, &fakeLoader{}, StartLazy)
	m.Trigger()
	waitSettled(t, m)
	if !m.Ready() {
		t.Fatalf("state=%s", m.Snapshot().State)
	}
	if store.discards.Load() != 1 || store.commits.Load() != 1 {
		t.Fatalf("discards=%d commits=%d", store.discards.Load(), store.commits.Load())
	}
	want := []State{StateAcquiring, StateValidating, StateAcquiring, StateValidating, StateLoading, StateReady}
	if diff := cmp.Diff(want, pub.Path()); diff != "" {
		t.Fatalf("path (-want +got):\n%s", diff)
	}
}

func TestMissingSourceFailsWithoutRetry(t *testing.T) {
	store := &fakeStore{stageErrs: []error{apperr.New(apperr.ModelFailed, "no download source configured")}}
	m, rs, _ := newTestManager(t, store, &fakeLoader{}, StartLazy)
	m.Trigger()
	waitSettled(t, m)
	if m.Snapshot().State != StateFailed || store.stages.Load() != 1 || len(rs.Delays()) != 0 {
		t.Fatalf("state=%s stages=%d delays=%v", m.Snapshot().State, store.stages.Load(), rs.Delays())
	}
}

func TestLoadFailureThenManualRetry(t *testing.T) {
	loader := &fakeLoader{errs: []error{errors.New("bad graph")}}
	store := &fakeStore{}
	m, _, pub := newTestManager(t, store, loader, StartLazy)
	m.Trigger()
	waitSettled(t, m)
	s := m.Snapshot()
	if s.State != StateFailed || s.Err != "bad graph" || store.stages.Load() != 1 {
		t.Fatalf("snapshot %+v stages=%d", s, store.stages.Load())
	}
	if !m.Trigger() {
		t.Fatalf("trigger from failed must start a new sequence")
	}
	waitSettled(t, m)
	if !m.Ready() || m.Snapshot().Err != "" {
		t.Fatalf("snapshot after retry %+v", m.Snapshot())
	}
	var failed int
	for _, e := range pub.Events() {
		if e.Name == EventFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("failed events=%d", failed)
	}
}

func TestRetriggerRightAfterFailureWakesWaiter(t *testing.T) {
	loader := &fakeLoader{errs: []error{errors.New("bad graph")}}
	m, _, _ := newTestManager(t, &fakeStore{}, loader, StartLazy)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.Trigger()
	if err := m.WaitReady(ctx); !apperr.IsKind(err, apperr.ModelFailed) {
		t.Fatalf("first sequence: %v", err)
	}
	// no settling in between: the waiter restarts the lifecycle at once
	if !m.Trigger() {
		t.Fatalf("trigger refused right after the failure was observed")
	}
	if st := m.Snapshot().State; st == StateFailed {
		t.Fatalf("state still %s after trigger", st)
	}
	if err := m.WaitReady(ctx); err != nil {
		t.Fatalf("second sequence: %v", err)
	}
}

func TestDelayedStartUsesWarmup(t *testing.T) {
	rs := &recordSleep{}
	m := New(Config{Store: &fakeStore{}, Loader: &fakeLoader{}, WarmupDelay: 3 * time.Second, Sleep: rs.Sleep})
	defer m.Close()
	if _, err := m.Model(); !apperr.IsKind(err, apperr.ModelNotReady) {
		t.Fatalf("delayed mode before start: %v", err)
	}
	if m.Snapshot().State != StateUninitialized {
		t.Fatalf("Model must not trigger in delayed mode")
	}
	m.Start()
	m.Start()
	waitSettled(t, m)
	if !m.Ready() {
		t.Fatalf("state=%s", m.Snapshot().State)
	}
	if d := rs.Delays(); len(d) != 1 || d[0] != 3*time.Second {
		t.Fatalf("warmup delays=%v", d)
	}
}

func TestNotReadyCarriesRetryAfter(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	m := New(Config{Store: store, Loader: &fakeLoader{}, Mode: StartLazy, RetryAfter: 7 * time.Second})
	defer func() { close(store.gate); _ = m.Close() }()
	_, err := m.Model()
	if apperr.RetryAfterOf(err) != 7*time.Second {
		t.Fatalf("retry after=%v err=%v", apperr.RetryAfterOf(err), err)
	}
}

func TestCloseCancelsRunningSequence(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	m := New(Config{Store: store, Loader: &fakeLoader{}, Mode: StartLazy})
	m.Trigger()
	done := make(chan struct{})
	go func() { _ = m.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not return")
	}
	if m.Trigger() {
		t.Fatalf("trigger after close")
	}
}

func TestWaitReadyHonorsContext(t *testing.T) {
	m := New(Config{Store: &fakeStore{}, Loader: &fakeLoader{}, Mode: StartLazy})
	defer m.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.WaitReady(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline, got %v", err)
	}
	if !apperr.IsKind(err, apperr.ModelNotReady) || apperr.RetryAfterOf(err) <= 0 {
		t.Fatalf("uninitialized model should be not ready with a hint, got %v", err)
	}
}

func TestWaitReadyDeadlineWhileAcquiringIsNotReady(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	m, _, _ := newTestManager(t, store, &fakeLoader{}, StartLazy)
	m.Trigger()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := m.WaitReady(ctx)
	if !apperr.IsKind(err, apperr.ModelNotReady) {
		t.Fatalf("want ModelNotReady, got %v", err)
	}
	if apperr.RetryAfterOf(err) <= 0 {
		t.Fatalf("missing retry hint: %v", err)
	}
	close(store.gate)
	waitSettled(t, m)
}

func TestWaitReadyCanceledIsNotClassified(t *testing.T) {
	m := New(Config{Store: &fakeStore{}, Loader: &fakeLoader{}, Mode: StartLazy})
	defer m.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.WaitReady(ctx); !errors.Is(err, context.Canceled) || apperr.KindOf(err) != "" {
		t.Fatalf("want bare context.Canceled, got %v", err)
	}
}

func TestStatusReportsLifecycle(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeStore{}, &fakeLoader{}, StartLazy)
	m.Trigger()
	waitSettled(t, m)
	st := m.Status()
	if st.State != "ready" || st.LoadsTotal != 1 || st.ReadySinceUnix == 0 || st.ArtifactSource == "" {
		t.Fatalf("status %+v", st)
	}
}
