package inference

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"breedserve/internal/apperr"
)

// DefaultMaxPixels caps the decoded size of an upload (about 96 MiB of RGBA).
const DefaultMaxPixels = 24_000_000

// Decode parses an encoded image. Any decode failure is InvalidInput, as is
// an image whose header declares more than maxPixels pixels; the header is
// checked before any pixel buffer is allocated. maxPixels <= 0 disables the
// check.
func Decode(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", apperr.New(apperr.InvalidInput, "empty image")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperr.Wrap(apperr.InvalidInput, err, "decode image header")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", apperr.New(apperr.InvalidInput, "image has no pixels")
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", apperr.New(apperr.InvalidInput, "image is %dx%d, above the %d pixel limit", cfg.Width, cfg.Height, maxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperr.Wrap(apperr.InvalidInput, err, "decode image")
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", apperr.New(apperr.InvalidInput, "image has no pixels")
	}
	return img, format, nil
}

// Tensorize drops alpha, resizes img to size x size, and normalizes each
// channel with mean/std into a CHW float32 buffer of length 3*size*size.
func Tensorize(img image.Image, size int, mean, std []float32) []float32 {
	resized := resize.Resize(uint(size), uint(size), opaque(img), resize.Bilinear)
	b := resized.Bounds()
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*size + x
			out[i] = (float32(r)/65535 - mean[0]) / std[0]
			out[plane+i] = (float32(g)/65535 - mean[1]) / std[1]
			out[2*plane+i] = (float32(bl)/65535 - mean[2]) / std[2]
		}
	}
	return out
}

// opaque returns img with its alpha channel discarded: every pixel keeps its
// unpremultiplied colour at full opacity. Opaque images (JPEG) pass through.
// The resizer premultiplies, so this must happen before resizing.
func opaque(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}
