package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"

	"breedserve/internal/artifact"
	"breedserve/internal/inference"
	"breedserve/internal/lifecycle"
)

// DefaultArtifactName is used when neither a path nor a scanned artifact is available.
const DefaultArtifactName = "breed_classifier.onnx"

// Defaults returns a fully populated configuration.
func Defaults() Config {
	return Config{
		Addr:      ":5001",
		LogLevel:  "info",
		LogFormat: "console",
		Model: ModelConfig{
			ModelsDir:      "models",
			MinSizeBytes:   1 << 20,
			Format:         string(artifact.FormatONNX),
			StartMode:      string(lifecycle.StartDelayed),
			WarmupDelay:    Duration(2 * time.Second),
			MaxAttempts:    3,
			RetryBase:      Duration(2 * time.Second),
			RetryMax:       Duration(30 * time.Second),
			ConnectTimeout: Duration(30 * time.Second),
			ChunkSize:      artifact.DefaultChunkSize,
		},
		Inference: InferenceConfig{
			Threads:       1,
			MaxQueueDepth: 16,
			MaxWait:       Duration(30 * time.Second),
			ReclaimEvery:  1,
			MaxPixels:     inference.DefaultMaxPixels,
		},
		HTTP: HTTPConfig{
			MaxBodyBytes:   10 << 20,
			RequestTimeout: Duration(60 * time.Second),
			CORSMethods:    []string{"GET", "POST", "OPTIONS"},
			CORSHeaders:    []string{"Content-Type", "X-Log-Level"},
		},
		Orchestrator: OrchestratorConfig{
			LocalProbeTimeout:   Duration(2 * time.Second),
			RemoteProbeTimeout:  Duration(10 * time.Second),
			RemoteProbeAttempts: 3,
			ProbeInterval:       Duration(time.Second),
			CallTimeout:         Duration(30 * time.Second),
		},
	}
}

// ApplyDefaults fills unset fields from Defaults. Model.Path is left for
// the caller to resolve (see ResolveModelPath).
func (c *Config) ApplyDefaults() {
	d := Defaults()
	setStr := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if *dst <= 0 {
			*dst = v
		}
	}
	setDur := func(dst *Duration, v Duration) {
		if *dst <= 0 {
			*dst = v
		}
	}
	setStr(&c.Addr, d.Addr)
	setStr(&c.LogLevel, d.LogLevel)
	setStr(&c.LogFormat, d.LogFormat)

	setStr(&c.Model.ModelsDir, d.Model.ModelsDir)
	if c.Model.MinSizeBytes <= 0 {
		c.Model.MinSizeBytes = d.Model.MinSizeBytes
	}
	setStr(&c.Model.Format, d.Model.Format)
	setStr(&c.Model.StartMode, d.Model.StartMode)
	if c.Model.WarmupDelay == 0 {
		c.Model.WarmupDelay = d.Model.WarmupDelay
	}
	setInt(&c.Model.MaxAttempts, d.Model.MaxAttempts)
	setDur(&c.Model.RetryBase, d.Model.RetryBase)
	setDur(&c.Model.RetryMax, d.Model.RetryMax)
	setDur(&c.Model.ConnectTimeout, d.Model.ConnectTimeout)
	setInt(&c.Model.ChunkSize, d.Model.ChunkSize)

	setInt(&c.Inference.Threads, d.Inference.Threads)
	setInt(&c.Inference.MaxQueueDepth, d.Inference.MaxQueueDepth)
	setDur(&c.Inference.MaxWait, d.Inference.MaxWait)
	if c.Inference.ReclaimEvery < 0 {
		c.Inference.ReclaimEvery = 0
	} else if c.Inference.ReclaimEvery == 0 {
		c.Inference.ReclaimEvery = d.Inference.ReclaimEvery
	}
	if c.Inference.MaxPixels < 0 {
		c.Inference.MaxPixels = 0
	} else if c.Inference.MaxPixels == 0 {
		c.Inference.MaxPixels = d.Inference.MaxPixels
	}

	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = d.HTTP.MaxBodyBytes
	}
	setDur(&c.HTTP.RequestTimeout, d.HTTP.RequestTimeout)
	if len(c.HTTP.CORSMethods) == 0 {
		c.HTTP.CORSMethods = d.HTTP.CORSMethods
	}
	if len(c.HTTP.CORSHeaders) == 0 {
		c.HTTP.CORSHeaders = d.HTTP.CORSHeaders
	}

	o := &c.Orchestrator
	setDur(&o.LocalProbeTimeout, d.Orchestrator.LocalProbeTimeout)
	setDur(&o.RemoteProbeTimeout, d.Orchestrator.RemoteProbeTimeout)
	setInt(&o.RemoteProbeAttempts, d.Orchestrator.RemoteProbeAttempts)
	setDur(&o.ProbeInterval, d.Orchestrator.ProbeInterval)
	setDur(&o.CallTimeout, d.Orchestrator.CallTimeout)
	if o.CacheSize < 0 {
		o.CacheSize = 0
	}
}

// ResolveModelPath fills Model.Path: an explicit path wins, then the
// preferred artifact found by find in ModelsDir, then the default name
// inside ModelsDir.
func (c *Config) ResolveModelPath(find func(dir string) (string, bool, error)) error {
	if c.Model.Path != "" {
		return nil
	}
	if find != nil {
		p, ok, err := find(c.Model.ModelsDir)
		if err != nil {
			return err
		}
		if ok {
			c.Model.Path = p
			return nil
		}
	}
	c.Model.Path = filepath.Join(c.Model.ModelsDir, DefaultArtifactName)
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: want console or json, got %q", c.LogFormat))
	}
	if _, err := artifact.ParseFormat(c.Model.Format); err != nil {
		errs = append(errs, fmt.Errorf("model.format: %w", err))
	}
	if c.Model.Digest != "" {
		if _, err := digest.Parse(c.Model.Digest); err != nil {
			errs = append(errs, fmt.Errorf("model.digest: %w", err))
		}
	}
	if _, err := lifecycle.ParseStartMode(c.Model.StartMode); err != nil {
		errs = append(errs, fmt.Errorf("model.start_mode: %w", err))
	}
	if c.Model.MaxAttempts < 1 {
		errs = append(errs, errors.New("model.max_attempts must be >= 1"))
	}
	if c.Model.RetryMax > 0 && c.Model.RetryBase > c.Model.RetryMax {
		errs = append(errs, errors.New("model.retry_base exceeds model.retry_max"))
	}
	for _, s := range c.Model.Sources() {
		if err := checkSource(s); err != nil {
			errs = append(errs, fmt.Errorf("model source %q: %w", s, err))
		}
	}
	if c.Orchestrator.RemoteURL != "" {
		u, err := url.Parse(c.Orchestrator.RemoteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("orchestrator.remote_url: want http(s)://host[:port], got %q", c.Orchestrator.RemoteURL))
		}
	}
	if c.Orchestrator.RemoteProbeAttempts < 0 {
		errs = append(errs, errors.New("orchestrator.remote_probe_attempts must be >= 0"))
	}
	return errors.Join(errs...)
}

func checkSource(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "s3":
		if u.Host == "" {
			return errors.New("missing host or bucket")
		}
	case "", "file":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

// ArtifactSpec builds the acquisition spec for the resolved model path.
func (c Config) ArtifactSpec() (artifact.Spec, error) {
	f, err := artifact.ParseFormat(c.Model.Format)
	if err != nil {
		return artifact.Spec{}, err
	}
	spec := artifact.Spec{
		Path:    c.Model.Path,
		Sources: c.Model.Sources(),
		MinSize: c.Model.MinSizeBytes,
		Format:  f,
	}
	if c.Model.Digest != "" {
		d, err := digest.Parse(c.Model.Digest)
		if err != nil {
			return artifact.Spec{}, err
		}
		spec.Digest = d
	}
	return spec, nil
}

// RetryPolicy builds the lifecycle retry policy.
func (c Config) RetryPolicy() lifecycle.RetryPolicy {
	return lifecycle.RetryPolicy{
		MaxAttempts: c.Model.MaxAttempts,
		Base:        c.Model.RetryBase.D(),
		Max:         c.Model.RetryMax.D(),
	}
}
