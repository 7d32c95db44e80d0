package artifact

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// DefaultChunkSize bounds each read/write during a download so the transfer
// never holds more than one chunk of the artifact in memory.
const DefaultChunkSize = 1 << 20

// Fetcher streams the artifact named by source into dst.
type Fetcher interface {
	Fetch(ctx context.Context, source string, dst io.Writer) (int64, error)
}

// copyChunks copies src into dst one bounded chunk at a time, checking ctx
// between chunks. Unlike io.Copy it never hands the transfer to a
// ReaderFrom/WriterTo fast path with its own buffering.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int, progress func(int64)) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
			if w != n {
				return total, io.ErrShortWrite
			}
			if progress != nil {
				progress(total)
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// progressLogger logs every step bytes.
func progressLogger(log zerolog.Logger, source string, expected int64) func(int64) {
	const step = 16 << 20
	next := int64(step)
	return func(n int64) {
		if n < next {
			return
		}
		next = n + step
		ev := log.Debug().Str("source", source).Str("downloaded", humanize.Bytes(uint64(n)))
		if expected > 0 {
			ev = ev.Int64("percent", n*100/expected)
		}
		ev.Msg("artifact download progress")
	}
}

// HTTPFetcher downloads http(s) sources.
type HTTPFetcher struct {
	Client    *http.Client
	ChunkSize int
	Log       zerolog.Logger
}

// NewHTTPFetcher builds a fetcher with a dial timeout; the overall transfer is
// bounded by the caller's context.
func NewHTTPFetcher(connectTimeout time.Duration, chunkSize int, log zerolog.Logger) *HTTPFetcher {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 2 * connectTimeout,
	}
	return &HTTPFetcher{Client: &http.Client{Transport: tr}, ChunkSize: chunkSize, Log: log}
}

func (h *HTTPFetcher) Fetch(ctx context.Context, source string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, err
	}
	cli := h.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("GET %s: %s", redact(source), resp.Status)
	}
	h.Log.Info().Str("source", redact(source)).Str("size", humanize.Bytes(uint64(max(resp.ContentLength, 0)))).Msg("artifact download start")
	n, err := copyChunks(ctx, dst, resp.Body, h.ChunkSize, progressLogger(h.Log, redact(source), resp.ContentLength))
	if err != nil {
		return n, fmt.Errorf("download %s: %w", redact(source), err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, fmt.Errorf("download %s: short body %d of %d bytes", redact(source), n, resp.ContentLength)
	}
	return n, nil
}

// FileFetcher copies file:// sources and bare local paths.
type FileFetcher struct {
	ChunkSize int
}

func (f FileFetcher) Fetch(ctx context.Context, source string, dst io.Writer) (int64, error) {
	path := strings.TrimPrefix(source, "file://")
	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return copyChunks(ctx, dst, src, f.ChunkSize, nil)
}

// schemeOf returns the lower-cased URL scheme, or "" for local paths.
func schemeOf(source string) string {
	u, err := url.Parse(source)
	if err != nil || len(u.Scheme) < 2 { // single letters are windows drive names
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// redact drops credentials and query strings (signed URLs) from logs.
func redact(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return source
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
