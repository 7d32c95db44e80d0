package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BREEDSERVE_"

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables on cfg. The unprefixed PORT,
// MODEL_DOWNLOAD_URL and MODEL_QUANTIZED_URL are honored for compatibility
// with existing deployments; prefixed names win when both are set.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(names ...string) (string, bool) {
		for _, n := range names {
			if v, ok := lookup(n); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}
	var errs []error
	str := func(dst *string, names ...string) {
		if v, ok := get(names...); ok {
			*dst = v
		}
	}
	integer := func(dst *int, name string) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	int64v := func(dst *int64, name string) {
		if v, ok := get(name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(dst *Duration, name string) {
		if v, ok := get(name); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	boolean := func(dst *bool, name string) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	list := func(dst *[]string, name string) {
		if v, ok := get(name); ok {
			*dst = splitCSV(v)
		}
	}
	p := EnvPrefix

	if _, ok := get(p + "ADDR"); ok {
		str(&cfg.Addr, p+"ADDR")
	} else if v, ok := get("PORT"); ok {
		cfg.Addr = ":" + v
	}
	str(&cfg.LogLevel, p+"LOG_LEVEL")
	str(&cfg.LogFormat, p+"LOG_FORMAT")

	str(&cfg.Model.Path, p+"MODEL_PATH")
	str(&cfg.Model.ModelsDir, p+"MODELS_DIR")
	str(&cfg.Model.MetadataPath, p+"METADATA_PATH")
	str(&cfg.Model.DownloadURL, p+"MODEL_DOWNLOAD_URL", "MODEL_DOWNLOAD_URL")
	str(&cfg.Model.QuantizedURL, p+"MODEL_QUANTIZED_URL", "MODEL_QUANTIZED_URL")
	list(&cfg.Model.ExtraSources, p+"MODEL_SOURCES")
	int64v(&cfg.Model.MinSizeBytes, p+"MODEL_MIN_SIZE_BYTES")
	str(&cfg.Model.Format, p+"MODEL_FORMAT")
	str(&cfg.Model.Digest, p+"MODEL_DIGEST")
	str(&cfg.Model.StartMode, p+"START_MODE")
	dur(&cfg.Model.WarmupDelay, p+"WARMUP_DELAY")
	integer(&cfg.Model.MaxAttempts, p+"MAX_ATTEMPTS")
	dur(&cfg.Model.RetryBase, p+"RETRY_BASE")
	dur(&cfg.Model.RetryMax, p+"RETRY_MAX")
	dur(&cfg.Model.ConnectTimeout, p+"CONNECT_TIMEOUT")
	integer(&cfg.Model.ChunkSize, p+"CHUNK_SIZE")

	str(&cfg.S3.Endpoint, p+"S3_ENDPOINT")
	str(&cfg.S3.Region, p+"S3_REGION")
	str(&cfg.S3.AccessKey, p+"S3_ACCESS_KEY")
	str(&cfg.S3.SecretKey, p+"S3_SECRET_KEY")
	boolean(&cfg.S3.UseSSL, p+"S3_USE_SSL")

	str(&cfg.Inference.OnnxLibrary, p+"ONNX_LIBRARY", "ONNXRUNTIME_SHARED_LIBRARY_PATH")
	integer(&cfg.Inference.Threads, p+"THREADS")
	integer(&cfg.Inference.MaxQueueDepth, p+"MAX_QUEUE_DEPTH")
	dur(&cfg.Inference.MaxWait, p+"MAX_WAIT")
	integer(&cfg.Inference.ReclaimEvery, p+"RECLAIM_EVERY")
	integer(&cfg.Inference.MaxPixels, p+"MAX_PIXELS")

	int64v(&cfg.HTTP.MaxBodyBytes, p+"MAX_BODY_BYTES")
	dur(&cfg.HTTP.RequestTimeout, p+"REQUEST_TIMEOUT")
	boolean(&cfg.HTTP.CORSEnabled, p+"CORS_ENABLED")
	list(&cfg.HTTP.CORSOrigins, p+"CORS_ORIGINS")
	list(&cfg.HTTP.CORSMethods, p+"CORS_METHODS")
	list(&cfg.HTTP.CORSHeaders, p+"CORS_HEADERS")

	str(&cfg.Orchestrator.RemoteURL, p+"REMOTE_URL")
	dur(&cfg.Orchestrator.LocalProbeTimeout, p+"LOCAL_PROBE_TIMEOUT")
	dur(&cfg.Orchestrator.RemoteProbeTimeout, p+"REMOTE_PROBE_TIMEOUT")
	integer(&cfg.Orchestrator.RemoteProbeAttempts, p+"REMOTE_PROBE_ATTEMPTS")
	dur(&cfg.Orchestrator.ProbeInterval, p+"PROBE_INTERVAL")
	dur(&cfg.Orchestrator.CallTimeout, p+"CALL_TIMEOUT")
	integer(&cfg.Orchestrator.CacheSize, p+"CACHE_SIZE")

	return errors.Join(errs...)
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
