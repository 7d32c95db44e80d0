// Package lifecycle owns the model state of a host process: deferred
// acquisition of the artifact, validation, loading, and the record of the
// last failure. It is structured into small files by concern:
//
//   - state.go: State and the allowed transitions.
//   - retry.go: RetryPolicy (pure backoff) and the injectable sleep.
//   - config.go: Config, StartMode and defaults; New applies them.
//   - manager.go: Manager, Start/Trigger/Close and the acquisition sequence.
//   - access.go: Model, WaitReady, Snapshot and Status for readers.
//   - events.go: EventPublisher and the in-memory publisher for tests.
//
// The Manager is the single writer of the state. HTTP health and inference
// paths only read it through Snapshot or Model, so a slow download never
// blocks a health check.
package lifecycle
