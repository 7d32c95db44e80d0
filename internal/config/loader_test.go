package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: ":9999"
model:
  models_dir: /tmp
  download_url: https://example.com/m.onnx
  warmup_delay: 5s
  max_attempts: 4
inference:
  max_wait: 2s
orchestrator:
  remote_url: http://10.0.0.2:5001
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Model.ModelsDir != "/tmp" || cfg.Model.MaxAttempts != 4 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Model.WarmupDelay.D() != 5*time.Second || cfg.Inference.MaxWait.D() != 2*time.Second {
		t.Fatalf("durations: %v %v", cfg.Model.WarmupDelay.D(), cfg.Inference.MaxWait.D())
	}
	if cfg.Orchestrator.RemoteURL != "http://10.0.0.2:5001" {
		t.Fatalf("remote: %q", cfg.Orchestrator.RemoteURL)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","model":{"path":"/m/a.onnx","retry_base":"500ms","retry_max":10},"s3":{"endpoint":"minio:9000"}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.Model.Path != "/m/a.onnx" || cfg.S3.Endpoint != "minio:9000" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Model.RetryBase.D() != 500*time.Millisecond || cfg.Model.RetryMax.D() != 10*time.Second {
		t.Fatalf("durations: %v %v", cfg.Model.RetryBase.D(), cfg.Model.RetryMax.D())
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\n[model]\nmodels_dir=\"/x\"\nstart_mode=\"lazy\"\nwarmup_delay=\"1m\"\n[http]\ncors_enabled=true\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.Model.ModelsDir != "/x" || cfg.Model.StartMode != "lazy" || !cfg.HTTP.CORSEnabled {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Model.WarmupDelay.D() != time.Minute {
		t.Fatalf("warmup=%v", cfg.Model.WarmupDelay.D())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	p = writeTempFile(t, d, "dur.yaml", "model:\n  warmup_delay: soon\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected duration error")
	}
}
