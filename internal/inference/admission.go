package inference

import (
	"context"
	"time"

	"breedserve/internal/apperr"
)

// Defaults applied when Admission limits are unset.
const (
	defaultMaxQueueDepth = 16
	defaultMaxWait       = 30 * time.Second
)

// Admission bounds concurrent inference: a FIFO queue of waiting requests in
// front of a single in-flight slot. One decoded image and one forward pass at
// a time keeps the peak memory of a worker predictable.
type Admission struct {
	genCh   chan struct{} // size 1: single in-flight forward pass
	queueCh chan struct{} // buffered: queue slots
	maxWait time.Duration
}

// NewAdmission builds an admission gate; non-positive values use defaults.
func NewAdmission(maxQueueDepth int, maxWait time.Duration) *Admission {
	if maxQueueDepth <= 0 {
		maxQueueDepth = defaultMaxQueueDepth
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	return &Admission{
		genCh:   make(chan struct{}, 1),
		queueCh: make(chan struct{}, maxQueueDepth),
		maxWait: maxWait,
	}
}

// Begin reserves a queue slot and then the in-flight slot. The returned
// release func must be called when the forward pass finishes.
func (a *Admission) Begin(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer := time.NewTimer(a.maxWait)
	defer timer.Stop()
	select {
	case a.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, a.busy()
	}

	acquired := false
	defer func() {
		if !acquired {
			<-a.queueCh
		}
	}()
	select {
	case a.genCh <- struct{}{}:
		acquired = true
		return func() { <-a.genCh; <-a.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, a.busy()
	}
}

func (a *Admission) busy() error {
	return &apperr.Error{Kind: apperr.Busy, Message: "inference queue full", RetryAfter: time.Second}
}

// QueueLen reports requests queued or running.
func (a *Admission) QueueLen() int { return len(a.queueCh) }

// MaxQueueDepth reports the queue capacity.
func (a *Admission) MaxQueueDepth() int { return cap(a.queueCh) }
