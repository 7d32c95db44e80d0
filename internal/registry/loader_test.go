package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeSized(t *testing.T, dir, name string, size int) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
}

func TestLoadDirFiltersONNX(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"a.onnx", "b.ONNX", "not-model.txt", "model.pth", ".model.onnx.123.part", ".hidden.onnx"} {
		writeSized(t, dir, f, 1)
	}
	models, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %+v", models)
	}
	for _, m := range models {
		if !strings.HasSuffix(strings.ToLower(m.ID), ".onnx") || !filepath.IsAbs(m.Path) {
			t.Fatalf("unexpected model: %+v", m)
		}
	}
}

func TestLoadDirExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "breedserve-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	writeSized(t, hTmp, "x.onnx", 1)
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := LoadDir(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.onnx" || models[0].Name != "x" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestQuantDetection(t *testing.T) {
	cases := map[string]string{
		"breeds-int8.onnx":      "int8",
		"breeds_quantized.onnx": "int8",
		"breeds-fp16.onnx":      "fp16",
		"breeds.onnx":           "",
	}
	for name, want := range cases {
		if got := quantOf(name); got != want {
			t.Fatalf("%s: got %q want %q", name, got, want)
		}
	}
}

func TestFindPrefersQuantized(t *testing.T) {
	dir := t.TempDir()
	writeSized(t, dir, "breeds.onnx", 64)
	writeSized(t, dir, "breeds-int8.onnx", 16)
	m, ok, err := Find(dir)
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if m.ID != "breeds-int8.onnx" || m.Size != 16 || !m.Quantized() {
		t.Fatalf("preferred=%+v", m)
	}
}

func TestFindMissingDir(t *testing.T) {
	_, ok, err := Find(filepath.Join(t.TempDir(), "nope"))
	if err != nil || ok {
		t.Fatalf("missing dir: ok=%v err=%v", ok, err)
	}
	_, ok, err = Find("")
	if err != nil || ok {
		t.Fatalf("empty dir: ok=%v err=%v", ok, err)
	}
}
