package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"breedserve/internal/artifact"
	"breedserve/internal/config"
	"breedserve/internal/host"
	"breedserve/internal/inference"
	"breedserve/internal/lifecycle"
	"breedserve/internal/orchestrator"
	"breedserve/internal/registry"
)

// loadConfig layers configuration: file, then dotenv and environment, then
// flags; defaults fill whatever is left.
func loadConfig(cmd *cobra.Command, g *globalFlags) (config.Config, error) {
	var cfg config.Config
	if g.configPath != "" {
		c, err := config.Load(g.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	if err := config.LoadDotEnv(g.envFiles...); err != nil {
		return cfg, err
	}
	if err := config.ApplyEnv(&cfg, nil); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = g.logFormat
	}
	cfg.ApplyDefaults()
	if err := cfg.ResolveModelPath(findModel); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findModel(dir string) (string, bool, error) {
	m, ok, err := registry.Find(dir)
	return m.Path, ok, err
}

func newLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := w
	if cfg.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// newStore builds the artifact store with http(s), file and, when an
// endpoint is configured, s3 fetchers.
func newStore(cfg config.Config, log zerolog.Logger) (*artifact.Store, error) {
	spec, err := cfg.ArtifactSpec()
	if err != nil {
		return nil, err
	}
	hf := artifact.NewHTTPFetcher(cfg.Model.ConnectTimeout.D(), cfg.Model.ChunkSize, log)
	opts := []artifact.Option{
		artifact.WithLogger(log),
		artifact.WithFetcher("http", hf),
		artifact.WithFetcher("https", hf),
	}
	if cfg.S3.Enabled() {
		sf, err := artifact.NewS3Fetcher(cfg.S3, cfg.Model.ChunkSize, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, artifact.WithFetcher("s3", sf))
	}
	return artifact.NewStore(spec, opts...), nil
}

// newEngine assembles a lifecycle manager and the host service over it.
// events and obs may be nil.
func newEngine(cfg config.Config, log zerolog.Logger, events lifecycle.EventPublisher, obs host.Observer) (*host.Service, *lifecycle.Manager, error) {
	store, err := newStore(cfg, log.With().Str("component", "artifact").Logger())
	if err != nil {
		return nil, nil, err
	}
	mode, err := lifecycle.ParseStartMode(cfg.Model.StartMode)
	if err != nil {
		return nil, nil, err
	}
	loader := inference.ModelLoader{
		Runtime:      inference.NewONNXRuntime(cfg.Inference.OnnxLibrary, cfg.Inference.Threads),
		MetadataPath: cfg.Model.MetadataPath,
		Log:          log.With().Str("component", "loader").Logger(),
	}
	lc := lifecycle.New(lifecycle.Config{
		Store:       store,
		Loader:      loader,
		Mode:        mode,
		WarmupDelay: cfg.Model.WarmupDelay.D(),
		Retry:       cfg.RetryPolicy(),
		Events:      events,
		Log:         log.With().Str("component", "lifecycle").Logger(),
	})
	exec := inference.NewExecutor(
		inference.WithReclaimEvery(cfg.Inference.ReclaimEvery),
		inference.WithMaxPixels(cfg.Inference.MaxPixels),
		inference.WithExecutorLogger(log),
	)
	adm := inference.NewAdmission(cfg.Inference.MaxQueueDepth, cfg.Inference.MaxWait.D())
	opts := []host.Option{host.WithLogger(log)}
	if obs != nil {
		opts = append(opts, host.WithObserver(obs))
	}
	return host.New(lc, exec, adm, opts...), lc, nil
}

// newOrchestrator wires the prober, the remote client and the embedded
// fallback from cfg.
func newOrchestrator(cfg config.Config, log zerolog.Logger) (*orchestrator.Orchestrator, error) {
	oc := cfg.Orchestrator
	ocfg := orchestrator.Config{
		CallTimeout: oc.CallTimeout.D(),
		CacheSize:   oc.CacheSize,
		Log:         log.With().Str("component", "orchestrator").Logger(),
	}
	var health orchestrator.HealthChecker
	if oc.RemoteURL != "" {
		rc := orchestrator.NewRemoteClient(oc.RemoteURL, &http.Client{})
		health = rc
		ocfg.Remote = rc
	}
	ocfg.Prober = orchestrator.NewProber(orchestrator.ProbeConfig{
		RemoteURL:           oc.RemoteURL,
		LocalProbeTimeout:   oc.LocalProbeTimeout.D(),
		RemoteProbeTimeout:  oc.RemoteProbeTimeout.D(),
		RemoteProbeAttempts: oc.RemoteProbeAttempts,
		ProbeInterval:       oc.ProbeInterval.D(),
		ModelPath:           cfg.Model.Path,
		ModelsDir:           cfg.Model.ModelsDir,
	}, health, log.With().Str("component", "prober").Logger())
	ocfg.Local = func(path string) (*orchestrator.Embedded, error) {
		local := cfg
		local.Model.Path = path
		local.Model.StartMode = string(lifecycle.StartLazy)
		svc, lc, err := newEngine(local, log, nil, nil)
		if err != nil {
			return nil, err
		}
		lc.Start()
		return &orchestrator.Embedded{Service: svc, Lifecycle: lc, Close: lc.Close}, nil
	}
	return orchestrator.New(ocfg)
}
