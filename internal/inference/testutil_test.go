package inference

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
)

// pngBytes encodes a solid w x h image.
func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeSession returns fixed scores and counts runs.
type fakeSession struct {
	scores  []float32
	err     error
	runs    atomic.Int32
	lastLen int
	closed  bool
}

func (f *fakeSession) Run(input []float32) ([]float32, error) {
	f.runs.Add(1)
	f.lastLen = len(input)
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.scores...), nil
}

func (f *fakeSession) Close() error { f.closed = true; return nil }

type fakeRuntime struct {
	sess *fakeSession
	err  error
	meta Metadata
}

func (r *fakeRuntime) Open(path string, meta Metadata) (Session, error) {
	r.meta = meta
	if r.err != nil {
		return nil, r.err
	}
	return r.sess, nil
}

var errBoom = errors.New("boom")
