package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"breedserve/internal/breeds"
)

// ImageNet statistics, used when the sidecar does not record its own.
var (
	imageNetMean = [3]float32{0.485, 0.456, 0.406}
	imageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

const defaultInputSize = 224

// Metadata is the sidecar JSON written next to an exported model.
type Metadata struct {
	Classes    []string  `json:"classes"`
	NumClasses int       `json:"num_classes,omitempty"`
	InputSize  []int     `json:"input_size,omitempty"`
	Mean       []float32 `json:"mean,omitempty"`
	Std        []float32 `json:"std,omitempty"`
	InputName  string    `json:"input_name,omitempty"`
	OutputName string    `json:"output_name,omitempty"`
}

// DefaultMetadata is used when no sidecar exists.
func DefaultMetadata() Metadata {
	return Metadata{
		Classes:    append([]string(nil), breeds.DefaultClasses...),
		NumClasses: len(breeds.DefaultClasses),
		InputSize:  []int{defaultInputSize, defaultInputSize},
		Mean:       append([]float32(nil), imageNetMean[:]...),
		Std:        append([]float32(nil), imageNetStd[:]...),
		InputName:  "input",
		OutputName: "output",
	}
}

// SidecarPath is the conventional metadata location for an artifact.
func SidecarPath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, ".onnx") + ".json"
}

// LoadMetadata reads the sidecar at path. A missing file yields the
// defaults; a malformed one is an error. Missing fields are filled from the
// defaults individually.
func LoadMetadata(path string) (Metadata, error) {
	def := DefaultMetadata()
	if path == "" {
		return def, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return def, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return m.withDefaults(def), nil
}

func (m Metadata) withDefaults(def Metadata) Metadata {
	if len(m.Classes) == 0 {
		m.Classes = def.Classes
	}
	if m.NumClasses <= 0 {
		m.NumClasses = len(m.Classes)
	}
	if len(m.InputSize) == 0 || m.InputSize[0] <= 0 {
		m.InputSize = def.InputSize
	}
	if len(m.Mean) != 3 {
		m.Mean = def.Mean
	}
	if len(m.Std) != 3 || !allPositive(m.Std) {
		m.Std = def.Std
	}
	if m.InputName == "" {
		m.InputName = def.InputName
	}
	if m.OutputName == "" {
		m.OutputName = def.OutputName
	}
	return m
}

func allPositive(v []float32) bool {
	for _, x := range v {
		if !(x > 0) {
			return false
		}
	}
	return true
}

// Size returns the square input dimension.
func (m Metadata) Size() int {
	if len(m.InputSize) == 0 || m.InputSize[0] <= 0 {
		return defaultInputSize
	}
	return m.InputSize[0]
}

// Label maps a class index to its vocabulary entry. Indices outside the
// vocabulary, which happen when the head is wider than the class list,
// map to breeds.Unknown.
func (m Metadata) Label(idx int) string {
	if idx < 0 || idx >= len(m.Classes) {
		return breeds.Unknown
	}
	return m.Classes[idx]
}
