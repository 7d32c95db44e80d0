package types

// Model represents a classifier artifact discovered on disk.
type Model struct {
	// Stable identifier for the model (file name).
	// example: breeds-convnext-tiny-int8.onnx
	ID string `json:"id" example:"breeds-convnext-tiny-int8.onnx"`
	// Human-friendly name.
	// example: breeds-convnext-tiny-int8
	Name string `json:"name" example:"breeds-convnext-tiny-int8"`
	// Absolute path to the artifact on disk.
	// example: /var/lib/breedserve/breeds-convnext-tiny-int8.onnx
	Path string `json:"path" example:"/var/lib/breedserve/breeds-convnext-tiny-int8.onnx"`
	// Size of the artifact in bytes.
	// example: 29360128
	Size int64 `json:"size" example:"29360128"`
	// Quantization variant detected from the file name (int8, fp16) or empty for full precision.
	// example: int8
	Quant string `json:"quant,omitempty" example:"int8"`
}

// Quantized reports whether the artifact is a reduced-precision variant.
func (m Model) Quantized() bool { return m.Quant != "" }

// BreedPrediction is a single ranked label.
type BreedPrediction struct {
	// Breed label from the model vocabulary, or "Unknown".
	// example: Gir
	Label string `json:"breed" example:"Gir"`
	// Softmax confidence in [0,1].
	// example: 0.83
	Confidence float64 `json:"confidence" example:"0.83"`
}

// Species is the coarse animal class.
type Species string

const (
	SpeciesCattle    Species = "cattle"
	SpeciesBuffalo   Species = "buffalo"
	SpeciesNonAnimal Species = "non_animal"
)

// SpeciesResult is the species decision for an image.
type SpeciesResult struct {
	// example: buffalo
	Species Species `json:"species" example:"buffalo"`
	// example: 0.91
	Confidence float64 `json:"confidence" example:"0.91"`
}

// ImageQuality is optional client-supplied metadata about an upload.
// The server records it in logs only.
type ImageQuality struct {
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	BlurScore float64 `json:"blur_score,omitempty"`
}
