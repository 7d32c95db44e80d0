package e2e

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"breedserve/internal/artifact"
	"breedserve/internal/host"
	"breedserve/internal/httpapi"
	"breedserve/internal/inference"
	"breedserve/internal/lifecycle"
)

// hotRuntime opens sessions whose logits favour one class index.
type hotRuntime struct {
	hot    int
	opened atomic.Int32
}

func (r *hotRuntime) Open(path string, meta inference.Metadata) (inference.Session, error) {
	r.opened.Add(1)
	scores := make([]float32, len(meta.Classes))
	for i := range scores {
		scores[i] = float32(i%3) * 0.1
	}
	scores[r.hot] = 8
	return hotSession(scores), nil
}

type hotSession []float32

func (s hotSession) Run([]float32) ([]float32, error) { return append([]float32(nil), s...), nil }
func (hotSession) Close() error { return nil }

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: 90, B: uint8(y * 7), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// onnxLike passes the ONNX signature check.
func onnxLike(n int) []byte {
	b := make([]byte, n)
	b[0], b[1] = 0x08, 0x07
	return b
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

type hostStack struct {
	lc     *lifecycle.Manager
	svc    *host.Service
	srv    *httptest.Server
	events *lifecycle.MemoryPublisher
	final  string
}

// newHostStack wires store, lifecycle, host and HTTP exactly as serve does,
// with a scripted runtime in place of onnxruntime.
func newHostStack(t *testing.T, source, final string, mode lifecycle.StartMode, rt inference.Runtime) *hostStack {
	t.Helper()
	store := artifact.NewStore(artifact.Spec{
		Path:    final,
		Sources: []string{source},
		MinSize: 16,
		Format:  artifact.FormatONNX,
	})
	events := lifecycle.NewMemoryPublisher()
	lc := lifecycle.New(lifecycle.Config{
		Store:       store,
		Loader:      inference.ModelLoader{Runtime: rt},
		Mode:        mode,
		WarmupDelay: 5 * time.Millisecond,
		Retry:       lifecycle.RetryPolicy{MaxAttempts: 2, Base: 5 * time.Millisecond, Max: 10 * time.Millisecond},
		RetryAfter:  time.Second,
		Events:      lifecycle.MultiPublisher{events, httpapi.MetricsPublisher{}},
	})
	svc := host.New(lc, nil, nil, host.WithObserver(httpapi.InferenceObserver{}))
	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(func() {
		srv.Close()
		_ = lc.Close()
	})
	return &hostStack{lc: lc, svc: svc, srv: srv, events: events, final: final}
}

func postImage(t *testing.T, url string, img []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "cow.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(img)
	_ = mw.Close()
	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

// localOnlyStore validates an artifact already on disk and never downloads.
func localOnlyStore(path string) *artifact.Store {
	return artifact.NewStore(artifact.Spec{Path: path, MinSize: 16, Format: artifact.FormatONNX})
}
