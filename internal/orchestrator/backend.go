// Package orchestrator is the client side of prediction: it decides which
// inference backend to use (a remote host, an embedded local session, or
// none), re-probes lazily when a call fails, retries once, and shapes raw
// predictions into breed, crossbreed and species answers.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"breedserve/pkg/types"
)

// BackendKind tags the inference path in use.
type BackendKind string

const (
	KindNone   BackendKind = "none"
	KindRemote BackendKind = "remote"
	KindLocal  BackendKind = "local_embedded"
)

// BackendHandle describes the backend currently considered usable.
type BackendHandle struct {
	Kind                BackendKind `json:"kind"`
	LastProbedAt        time.Time   `json:"last_probed_at"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
}

// ProbeResult is the outcome of one probe round.
type ProbeResult struct {
	RemoteConfigured bool
	// RemoteReachable means the host answered /health; its model may still
	// be loading.
	RemoteReachable bool
	RemoteHealth    *types.HealthResponse
	RemoteErr       error
	LocalAvailable  bool
	LocalPath       string
	ProbedAt        time.Time
}

// Select picks the backend for a probe result: a reachable remote first,
// then a local artifact, else none.
func Select(p ProbeResult) BackendKind {
	switch {
	case p.RemoteConfigured && p.RemoteReachable:
		return KindRemote
	case p.LocalAvailable:
		return KindLocal
	default:
		return KindNone
	}
}

// Backend answers inference calls. The remote client and the embedded
// local session both implement it.
type Backend interface {
	PredictBreed(ctx context.Context, img []byte) (types.PredictResponse, error)
	DetectSpecies(ctx context.Context, img []byte) (types.SpeciesResult, error)
}

// ErrNoSpeciesEndpoint is returned by backends without a species endpoint;
// the orchestrator then derives species from the top breed.
var ErrNoSpeciesEndpoint = errors.New("backend has no species endpoint")
