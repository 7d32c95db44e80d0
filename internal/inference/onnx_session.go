//go:build onnx

package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"breedserve/internal/apperr"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// onnxRuntime opens sessions with ONNX Runtime through onnxruntime_go.
type onnxRuntime struct {
	libPath string
	threads int
}

// NewONNXRuntime returns the ONNX Runtime backed Runtime. libPath points at
// the onnxruntime shared library; empty uses the platform default.
func NewONNXRuntime(libPath string, threads int) Runtime {
	return &onnxRuntime{libPath: libPath, threads: threads}
}

func (r *onnxRuntime) init() error {
	ortOnce.Do(func() {
		if r.libPath != "" {
			ort.SetSharedLibraryPath(r.libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortErr = apperr.Wrap(apperr.DependencyUnavailable, err, "initialize onnx runtime")
		}
	})
	return ortErr
}

func (r *onnxRuntime) Open(path string, meta Metadata) (Session, error) {
	if err := r.init(); err != nil {
		return nil, err
	}
	size := int64(meta.Size())
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(meta.NumClasses)))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if r.threads > 0 {
		_ = opts.SetIntraOpNumThreads(r.threads)
	}
	sess, err := ort.NewAdvancedSession(path,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out},
		opts)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &onnxSession{sess: sess, in: in, out: out}, nil
}

// onnxSession binds one input and one output tensor, so runs are serialized.
type onnxSession struct {
	mu   sync.Mutex
	sess *ort.AdvancedSession
	in   *ort.Tensor[float32]
	out  *ort.Tensor[float32]
}

func (s *onnxSession) Run(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := s.in.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)
	if err := s.sess.Run(); err != nil {
		return nil, err
	}
	return append([]float32(nil), s.out.GetData()...), nil
}

func (s *onnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		s.sess.Destroy()
		s.sess = nil
	}
	if s.in != nil {
		s.in.Destroy()
		s.in = nil
	}
	if s.out != nil {
		s.out.Destroy()
		s.out = nil
	}
	return nil
}
