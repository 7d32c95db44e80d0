package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"breedserve/internal/inference"
)

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.yaml", "addr: :8080\n: broken\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.json", `{ "addr": ":8080", "model": }`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.toml", "addr=:8080\nmodels_dir\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	cfg := Config{Addr: ":1", Model: ModelConfig{DownloadURL: "https://file/m.onnx"}}
	err := ApplyEnv(&cfg, envMap(map[string]string{
		"BREEDSERVE_ADDR":         ":2",
		"MODEL_DOWNLOAD_URL":      "https://legacy/m.onnx",
		"MODEL_QUANTIZED_URL":     "https://legacy/m-int8.onnx",
		"BREEDSERVE_WARMUP_DELAY": "750ms",
		"BREEDSERVE_CORS_ORIGINS": " https://a.example , ,https://b.example",
		"BREEDSERVE_S3_USE_SSL":   "true",
		"BREEDSERVE_CACHE_SIZE":   "128",
	}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Addr != ":2" || cfg.Model.DownloadURL != "https://legacy/m.onnx" {
		t.Fatalf("cfg=%+v", cfg)
	}
	want := []string{"https://legacy/m-int8.onnx", "https://legacy/m.onnx"}
	if diff := cmp.Diff(want, cfg.Model.Sources()); diff != "" {
		t.Fatalf("sources (-want +got):\n%s", diff)
	}
	if cfg.Model.WarmupDelay.D() != 750*time.Millisecond || !cfg.S3.UseSSL || cfg.Orchestrator.CacheSize != 128 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins); diff != "" {
		t.Fatalf("origins: %s", diff)
	}
}

func TestApplyEnvPrefixedWins(t *testing.T) {
	var cfg Config
	_ = ApplyEnv(&cfg, envMap(map[string]string{
		"BREEDSERVE_MODEL_DOWNLOAD_URL": "https://new/m.onnx",
		"MODEL_DOWNLOAD_URL":            "https://old/m.onnx",
		"PORT":                          "5005",
	}))
	if cfg.Model.DownloadURL != "https://new/m.onnx" || cfg.Addr != ":5005" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	var cfg Config
	err := ApplyEnv(&cfg, envMap(map[string]string{
		"BREEDSERVE_MAX_ATTEMPTS": "many",
		"BREEDSERVE_RETRY_BASE":   "later",
	}))
	if err == nil || !strings.Contains(err.Error(), "MAX_ATTEMPTS") || !strings.Contains(err.Error(), "RETRY_BASE") {
		t.Fatalf("want both errors, got %v", err)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, ".env", "BREEDSERVE_TEST_DOTENV=fromfile\nBREEDSERVE_TEST_DOTENV_SET=fromfile\n")
	t.Setenv("BREEDSERVE_TEST_DOTENV_SET", "fromenv")
	t.Cleanup(func() { os.Unsetenv("BREEDSERVE_TEST_DOTENV") })
	if err := LoadDotEnv(p, filepath.Join(d, "missing.env")); err != nil {
		t.Fatalf("dotenv: %v", err)
	}
	if os.Getenv("BREEDSERVE_TEST_DOTENV") != "fromfile" || os.Getenv("BREEDSERVE_TEST_DOTENV_SET") != "fromenv" {
		t.Fatalf("got %q / %q", os.Getenv("BREEDSERVE_TEST_DOTENV"), os.Getenv("BREEDSERVE_TEST_DOTENV_SET"))
	}
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Addr != ":5001" || cfg.Orchestrator.LocalProbeTimeout.D() != 2*time.Second || cfg.Orchestrator.RemoteProbeAttempts != 3 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Model.Format = "gguf"
	cfg.Model.StartMode = "eager"
	cfg.Model.Digest = "md5:abc"
	cfg.Model.ExtraSources = []string{"ftp://host/m.onnx"}
	cfg.Orchestrator.RemoteURL = "localhost:5001"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"model.format", "model.start_mode", "model.digest", "ftp", "remote_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestResolveModelPath(t *testing.T) {
	cfg := Defaults()
	cfg.Model.ModelsDir = "/models"
	_ = cfg.ResolveModelPath(func(string) (string, bool, error) { return "/models/b-int8.onnx", true, nil })
	if cfg.Model.Path != "/models/b-int8.onnx" {
		t.Fatalf("path=%q", cfg.Model.Path)
	}
	cfg.Model.Path = ""
	_ = cfg.ResolveModelPath(func(string) (string, bool, error) { return "", false, nil })
	if cfg.Model.Path != filepath.Join("/models", DefaultArtifactName) {
		t.Fatalf("path=%q", cfg.Model.Path)
	}
}

func TestArtifactSpec(t *testing.T) {
	cfg := Defaults()
	cfg.Model.Path = "/m/a.onnx"
	cfg.Model.DownloadURL = "https://x/a.onnx"
	cfg.Model.Digest = "sha256:" + strings.Repeat("a", 64)
	spec, err := cfg.ArtifactSpec()
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	if spec.Path != "/m/a.onnx" || len(spec.Sources) != 1 || spec.Digest.String() != cfg.Model.Digest || spec.MinSize != 1<<20 {
		t.Fatalf("spec=%+v", spec)
	}
}

func TestMaxPixels(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Inference.MaxPixels != inference.DefaultMaxPixels {
		t.Fatalf("default max_pixels=%d", cfg.Inference.MaxPixels)
	}

	cfg = Config{}
	if err := ApplyEnv(&cfg, envMap(map[string]string{"BREEDSERVE_MAX_PIXELS": "-1"})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	cfg.ApplyDefaults()
	if cfg.Inference.MaxPixels != 0 {
		t.Fatalf("negative should disable, got %d", cfg.Inference.MaxPixels)
	}
}
