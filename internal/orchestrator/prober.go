package orchestrator

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"breedserve/internal/common/fsutil"
	"breedserve/internal/registry"
	"breedserve/pkg/types"
)

// ProbeConfig bounds probing. Local addresses get a short timeout and a
// single attempt; remote ones a longer timeout and several attempts, since
// a cold host behind a load balancer takes a while to answer.
type ProbeConfig struct {
	RemoteURL           string
	LocalProbeTimeout   time.Duration
	RemoteProbeTimeout  time.Duration
	RemoteProbeAttempts int
	ProbeInterval       time.Duration
	// ModelPath and ModelsDir locate a local artifact for the embedded fallback.
	ModelPath string
	ModelsDir string
}

func (c ProbeConfig) withDefaults() ProbeConfig {
	if c.LocalProbeTimeout <= 0 {
		c.LocalProbeTimeout = 2 * time.Second
	}
	if c.RemoteProbeTimeout <= 0 {
		c.RemoteProbeTimeout = 10 * time.Second
	}
	if c.RemoteProbeAttempts <= 0 {
		c.RemoteProbeAttempts = 3
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = time.Second
	}
	return c
}

// HealthChecker performs one health call against the remote host.
type HealthChecker interface {
	Health(ctx context.Context) (types.HealthResponse, error)
}

// Prober checks which backends are usable.
type Prober struct {
	cfg    ProbeConfig
	remote HealthChecker
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	log    zerolog.Logger
}

// NewProber builds a prober. remote may be nil when no remote is configured.
func NewProber(cfg ProbeConfig, remote HealthChecker, log zerolog.Logger) *Prober {
	return &Prober{cfg: cfg.withDefaults(), remote: remote, sleep: sleepCtx, now: time.Now, log: log}
}

// Probe runs the remote and local checks concurrently.
func (p *Prober) Probe(ctx context.Context) ProbeResult {
	res := ProbeResult{RemoteConfigured: p.remote != nil && p.cfg.RemoteURL != ""}
	var g errgroup.Group
	if res.RemoteConfigured {
		g.Go(func() error {
			h, err := p.probeRemote(ctx)
			res.RemoteReachable = err == nil
			res.RemoteErr = err
			if err == nil {
				res.RemoteHealth = &h
			}
			return nil
		})
	}
	g.Go(func() error {
		res.LocalPath, res.LocalAvailable = p.probeLocal()
		return nil
	})
	_ = g.Wait()
	res.ProbedAt = p.now()
	p.log.Debug().Bool("remote_reachable", res.RemoteReachable).Bool("local_available", res.LocalAvailable).
		Str("selected", string(Select(res))).Msg("backend probe")
	return res
}

// Timing returns the timeout and attempt count used for the remote URL.
func (p *Prober) Timing() (time.Duration, int) {
	if IsLocalAddress(p.cfg.RemoteURL) {
		return p.cfg.LocalProbeTimeout, 1
	}
	return p.cfg.RemoteProbeTimeout, p.cfg.RemoteProbeAttempts
}

func (p *Prober) probeRemote(ctx context.Context) (types.HealthResponse, error) {
	timeout, attempts := p.Timing()
	var lastErr error
	for i := 1; i <= attempts; i++ {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		h, err := p.remote.Health(cctx)
		cancel()
		if err == nil {
			return h, nil
		}
		lastErr = err
		p.log.Debug().Err(err).Int("attempt", i).Int("attempts", attempts).Msg("remote health probe failed")
		if i < attempts {
			if err := p.sleep(ctx, p.cfg.ProbeInterval); err != nil {
				return types.HealthResponse{}, err
			}
		}
	}
	return types.HealthResponse{}, lastErr
}

func (p *Prober) probeLocal() (string, bool) {
	if p.cfg.ModelPath != "" {
		if fsutil.FileExists(p.cfg.ModelPath) {
			return p.cfg.ModelPath, true
		}
	}
	m, ok, err := registry.Find(p.cfg.ModelsDir)
	if err != nil || !ok {
		return "", false
	}
	return m.Path, true
}

// IsLocalAddress reports whether rawURL points at this machine.
func IsLocalAddress(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

