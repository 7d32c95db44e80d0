package lifecycle

import "sync"

// Event names.
const (
	EventTransition    = "transition"
	EventAttemptFailed = "attempt_failed"
	EventReady         = "ready"
	EventFailed        = "failed"
)

// Event is a lifecycle notification: name, the states involved and optional
// fields (attempt, error, source, size).
type Event struct {
	Name   string
	From   State
	To     State
	Fields map[string]any
}

// EventPublisher receives lifecycle events. Implementations must be
// non-blocking and must not panic.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Path returns the sequence of target states of transition events.
func (p *MemoryPublisher) Path() []State {
	var out []State
	for _, e := range p.Events() {
		if e.Name == EventTransition {
			out = append(out, e.To)
		}
	}
	return out
}

// MultiPublisher fans an event out to several publishers.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
