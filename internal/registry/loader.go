package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"breedserve/internal/common/fsutil"
	"breedserve/pkg/types"
)

// quantMarkers map file name fragments to a quantization label.
var quantMarkers = []struct{ marker, quant string }{
	{"int8", "int8"},
	{"uint8", "int8"},
	{"quant", "int8"},
	{"qint", "int8"},
	{"fp16", "fp16"},
	{"half", "fp16"},
}

// LoadDir scans a directory for *.onnx files and builds a registry from
// filenames. ID is the full filename; Path is absolute. Quant is detected
// from the name. Partial downloads (.part) and hidden files are skipped.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(strings.ToLower(name), ".onnx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		models = append(models, types.Model{
			ID:    name,
			Name:  strings.TrimSuffix(name, filepath.Ext(name)),
			Path:  filepath.Join(abs, name),
			Size:  info.Size(),
			Quant: quantOf(name),
		})
	}
	return models, nil
}

func quantOf(name string) string {
	lower := strings.ToLower(name)
	for _, q := range quantMarkers {
		if strings.Contains(lower, q.marker) {
			return q.quant
		}
	}
	return ""
}

// Preferred picks the artifact to serve: quantized variants first (smaller
// memory footprint), then the larger file, then name order.
func Preferred(models []types.Model) (types.Model, bool) {
	if len(models) == 0 {
		return types.Model{}, false
	}
	sorted := append([]types.Model(nil), models...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Quantized() != b.Quantized() {
			return a.Quantized()
		}
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.ID < b.ID
	})
	return sorted[0], true
}

// Find returns the preferred artifact in dir. A missing directory is not an
// error; it simply holds no artifact.
func Find(dir string) (types.Model, bool, error) {
	if dir == "" {
		return types.Model{}, false, nil
	}
	models, err := LoadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Model{}, false, nil
		}
		return types.Model{}, false, err
	}
	m, ok := Preferred(models)
	return m, ok, nil
}
