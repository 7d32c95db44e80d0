// Package apperr defines the error taxonomy shared by the inference host and
// the prediction orchestrator. Every error that crosses a component boundary
// is an *Error carrying a Kind, so callers can tell "try again shortly" from
// "this will not succeed without a configuration change".
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failure.
type Kind string

const (
	// ArtifactCorrupt: size, signature, pointer or digest check failed.
	ArtifactCorrupt Kind = "artifact_corrupt"
	// ModelNotReady: the model is still being acquired or loaded.
	ModelNotReady Kind = "model_not_ready"
	// ModelFailed: the lifecycle exhausted its retries; needs operator action.
	ModelFailed Kind = "model_failed"
	// BackendUnreachable: neither a remote nor a local backend is usable.
	BackendUnreachable Kind = "backend_unreachable"
	// InvalidInput: the image could not be decoded. Never retried.
	InvalidInput Kind = "invalid_input"
	// InferenceFailure: unexpected error during the forward pass.
	InferenceFailure Kind = "inference_failure"
	// Busy: the admission queue is full.
	Busy Kind = "busy"
	// DependencyUnavailable: the inference runtime is not compiled in or missing.
	DependencyUnavailable Kind = "dependency_unavailable"
)

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is a hint for ModelNotReady and Busy; zero otherwise.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps the kind onto an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case InvalidInput:
		return http.StatusBadRequest
	case Busy:
		return http.StatusTooManyRequests
	case ModelNotReady, ModelFailed, BackendUnreachable, DependencyUnavailable:
		return http.StatusServiceUnavailable
	case ArtifactCorrupt, InferenceFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Temporary reports whether retrying later may succeed.
func (e *Error) Temporary() bool {
	switch e.Kind {
	case ModelNotReady, Busy, ArtifactCorrupt:
		return true
	}
	return false
}

// New builds an *Error without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err returns nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotReady builds a ModelNotReady error with a retry hint.
func NotReady(state string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       ModelNotReady,
		Message:    "model is " + state,
		RetryAfter: retryAfter,
	}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" when
// err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RetryAfterOf returns the retry hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
