package inference

import (
	"image/color"
	"math"
	"testing"

	"breedserve/internal/apperr"
)

func TestDecodeRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty": nil,
		"text":  []byte("definitely not an image"),
		"trunc": pngBytes(t, 4, 4, color.White)[:20],
	} {
		if _, _, err := Decode(data, DefaultMaxPixels); !apperr.IsKind(err, apperr.InvalidInput) {
			t.Fatalf("%s: want InvalidInput, got %v", name, err)
		}
	}
}

func TestDecodePNG(t *testing.T) {
	img, format, err := Decode(pngBytes(t, 10, 6, color.Black), DefaultMaxPixels)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 10 || img.Bounds().Dy() != 6 {
		t.Fatalf("format=%s bounds=%v", format, img.Bounds())
	}
}

func TestTensorizeShapeAndNormalization(t *testing.T) {
	img, _, err := Decode(pngBytes(t, 30, 20, color.NRGBA{R: 255, G: 0, B: 255, A: 255}), DefaultMaxPixels)
	if err != nil {
		t.Fatal(err)
	}
	mean := []float32{0.5, 0.5, 0.5}
	std := []float32{0.5, 0.5, 0.5}
	out := Tensorize(img, 8, mean, std)
	if len(out) != 3*8*8 {
		t.Fatalf("len=%d", len(out))
	}
	plane := 64
	approx := func(got, want float32) bool { return math.Abs(float64(got-want)) < 1e-3 }
	// channel planes: R=1 -> 1, G=0 -> -1, B=1 -> 1
	if !approx(out[0], 1) || !approx(out[plane], -1) || !approx(out[2*plane+63], 1) {
		t.Fatalf("unexpected values r=%v g=%v b=%v", out[0], out[plane], out[2*plane+63])
	}
}

func TestDecodeRejectsOversizedBeforeDecoding(t *testing.T) {
	data := pngBytes(t, 300, 200, color.White)
	_, _, err := Decode(data, 300*200-1)
	if !apperr.IsKind(err, apperr.InvalidInput) {
		t.Fatalf("want InvalidInput, got %v", err)
	}
	if _, _, err := Decode(data, 300*200); err != nil {
		t.Fatalf("at the limit: %v", err)
	}
	if _, _, err := Decode(data, 0); err != nil {
		t.Fatalf("limit disabled: %v", err)
	}
}

func TestTensorizeDropsAlphaWithoutDarkening(t *testing.T) {
	cases := []struct {
		name string
		c    color.NRGBA
	}{
		{"transparent", color.NRGBA{R: 255, G: 0, B: 0, A: 0}},
		{"half", color.NRGBA{R: 255, G: 0, B: 0, A: 128}},
	}
	for _, c := range cases {
		img, _, err := Decode(pngBytes(t, 4, 4, c.c), DefaultMaxPixels)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		out := Tensorize(img, 4, []float32{0, 0, 0}, []float32{1, 1, 1})
		plane := 16
		if math.Abs(float64(out[5]-1)) > 1e-3 || math.Abs(float64(out[plane+5])) > 1e-3 {
			t.Fatalf("%s: r=%v g=%v, want 1 and 0", c.name, out[5], out[plane+5])
		}
	}
}
