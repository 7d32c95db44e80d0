//go:build !onnx

package inference

// This file provides a no-CGO stub for the ONNX runtime. It is compiled when
// the 'onnx' build tag is NOT set, keeping default builds CGO-free. Loading
// fails with a clear error; no placeholder predictions are ever produced.

import "breedserve/internal/apperr"

type onnxRuntime struct{}

// NewONNXRuntime returns a Runtime that refuses to open sessions.
func NewONNXRuntime(libPath string, threads int) Runtime { return onnxRuntime{} }

func (onnxRuntime) Open(path string, meta Metadata) (Session, error) {
	return nil, apperr.New(apperr.DependencyUnavailable, "onnx runtime support not built (missing 'onnx' build tag)")
}
