package inference

import (
	"context"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Session runs the forward pass of a loaded classifier. Run receives a CHW
// float32 tensor and returns raw class scores (logits). Implementations must
// be safe for concurrent use.
type Session interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

// Runtime opens a Session for an artifact on disk.
type Runtime interface {
	Open(path string, meta Metadata) (Session, error)
}

// Model is a loaded classifier. It is read-only once built.
type Model struct {
	Path    string
	Meta    Metadata
	Session Session
}

// Close releases the runtime session.
func (m *Model) Close() error {
	if m == nil || m.Session == nil {
		return nil
	}
	return m.Session.Close()
}

// ModelLoader turns a validated artifact into a Model: it reads the metadata
// sidecar, opens the runtime session and then forces a memory reclamation
// pass so the transient buffers of deserialization are returned to the OS
// before the first request arrives.
type ModelLoader struct {
	Runtime Runtime
	// MetadataPath overrides the sidecar location derived from the artifact.
	MetadataPath string
	Log          zerolog.Logger
}

// Load implements the lifecycle loader contract.
func (l ModelLoader) Load(ctx context.Context, path string) (*Model, error) {
	metaPath := l.MetadataPath
	if metaPath == "" {
		metaPath = SidecarPath(path)
	}
	meta, err := LoadMetadata(metaPath)
	if err != nil {
		return nil, err
	}
	if meta.NumClasses != len(meta.Classes) {
		// A head wider or narrower than the vocabulary still loads; surplus
		// indices rank as Unknown.
		l.Log.Warn().Int("head", meta.NumClasses).Int("vocabulary", len(meta.Classes)).Msg("classifier head and label vocabulary differ")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := l.Runtime.Open(path, meta)
	if err != nil {
		return nil, err
	}
	debug.FreeOSMemory()
	return &Model{Path: path, Meta: meta, Session: sess}, nil
}
