package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"breedserve/internal/artifact"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Defaults.
type Config struct {
	Addr         string             `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel     string             `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat    string             `json:"log_format" yaml:"log_format" toml:"log_format"`
	Model        ModelConfig        `json:"model" yaml:"model" toml:"model"`
	S3           artifact.S3Config  `json:"s3" yaml:"s3" toml:"s3"`
	Inference    InferenceConfig    `json:"inference" yaml:"inference" toml:"inference"`
	HTTP         HTTPConfig         `json:"http" yaml:"http" toml:"http"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator" toml:"orchestrator"`
}

// ModelConfig describes the artifact and how it is acquired.
type ModelConfig struct {
	// Path is the final artifact location.
	Path string `json:"path" yaml:"path" toml:"path"`
	// ModelsDir is scanned for *.onnx when Path is unset.
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	MetadataPath string `json:"metadata_path" yaml:"metadata_path" toml:"metadata_path"`
	// QuantizedURL is tried before DownloadURL.
	QuantizedURL string   `json:"quantized_url" yaml:"quantized_url" toml:"quantized_url"`
	DownloadURL  string   `json:"download_url" yaml:"download_url" toml:"download_url"`
	ExtraSources []string `json:"sources" yaml:"sources" toml:"sources"`
	MinSizeBytes int64    `json:"min_size_bytes" yaml:"min_size_bytes" toml:"min_size_bytes"`
	Format       string   `json:"format" yaml:"format" toml:"format"`
	Digest       string   `json:"digest" yaml:"digest" toml:"digest"`
	// StartMode is "delayed" or "lazy".
	StartMode      string   `json:"start_mode" yaml:"start_mode" toml:"start_mode"`
	WarmupDelay    Duration `json:"warmup_delay" yaml:"warmup_delay" toml:"warmup_delay"`
	MaxAttempts    int      `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	RetryBase      Duration `json:"retry_base" yaml:"retry_base" toml:"retry_base"`
	RetryMax       Duration `json:"retry_max" yaml:"retry_max" toml:"retry_max"`
	ConnectTimeout Duration `json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout"`
	ChunkSize      int      `json:"chunk_size" yaml:"chunk_size" toml:"chunk_size"`
}

// InferenceConfig tunes the executor and the runtime.
type InferenceConfig struct {
	OnnxLibrary   string   `json:"onnx_library" yaml:"onnx_library" toml:"onnx_library"`
	Threads       int      `json:"threads" yaml:"threads" toml:"threads"`
	MaxQueueDepth int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWait       Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	// ReclaimEvery forces a memory reclamation pass every n requests.
	ReclaimEvery int `json:"reclaim_every" yaml:"reclaim_every" toml:"reclaim_every"`
	// MaxPixels rejects uploads whose declared dimensions exceed it; negative disables.
	MaxPixels int `json:"max_pixels" yaml:"max_pixels" toml:"max_pixels"`
}

// HTTPConfig configures the host HTTP server.
type HTTPConfig struct {
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	CORSEnabled    bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods    []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders    []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`
}

// OrchestratorConfig configures the client-side prediction orchestrator.
type OrchestratorConfig struct {
	RemoteURL           string   `json:"remote_url" yaml:"remote_url" toml:"remote_url"`
	LocalProbeTimeout   Duration `json:"local_probe_timeout" yaml:"local_probe_timeout" toml:"local_probe_timeout"`
	RemoteProbeTimeout  Duration `json:"remote_probe_timeout" yaml:"remote_probe_timeout" toml:"remote_probe_timeout"`
	RemoteProbeAttempts int      `json:"remote_probe_attempts" yaml:"remote_probe_attempts" toml:"remote_probe_attempts"`
	ProbeInterval       Duration `json:"probe_interval" yaml:"probe_interval" toml:"probe_interval"`
	CallTimeout         Duration `json:"call_timeout" yaml:"call_timeout" toml:"call_timeout"`
	CacheSize           int      `json:"cache_size" yaml:"cache_size" toml:"cache_size"`
}

// Sources returns the download sources in preference order: quantized
// first, then full size, then any extra sources.
func (m ModelConfig) Sources() []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range append([]string{m.QuantizedURL, m.DownloadURL}, m.ExtraSources...) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
