// Package artifact acquires and validates the classifier weights file.
//
// Acquisition is split in three steps so the lifecycle manager can expose
// each as a state: Stage puts a candidate file on disk (the existing final
// file, or a fresh download into a temporary sibling), Check validates it,
// and Commit atomically moves a validated download into place. Discard
// deletes a rejected candidate.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"

	"breedserve/internal/apperr"
	"breedserve/internal/common/fsutil"
)

// Spec describes the expected artifact.
type Spec struct {
	// Path is where the validated artifact lives.
	Path string
	// Sources are tried in order; put the quantized variant first.
	Sources []string
	// MinSize rejects truncated downloads and error pages.
	MinSize int64
	Format  Format
	// Digest, when set, must match the file content.
	Digest digest.Digest
}

// Staged is a candidate file awaiting validation.
type Staged struct {
	Path   string
	Source string
	// Existing is true when Path is the final path found on disk.
	Existing bool
}

// Store runs acquisition for one Spec.
type Store struct {
	spec     Spec
	fetchers map[string]Fetcher
	log      zerolog.Logger

	mu sync.Mutex
	// rejected sources produced corrupt content; they are skipped while an
	// untried alternative remains.
	rejected map[string]bool
}

// Option customizes a Store.
type Option func(*Store)

// WithFetcher registers a fetcher for a URL scheme ("" for local paths).
func WithFetcher(scheme string, f Fetcher) Option {
	return func(s *Store) { s.fetchers[scheme] = f }
}

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore builds a store with http(s) and local file fetchers registered.
func NewStore(spec Spec, opts ...Option) *Store {
	s := &Store{
		spec:     spec,
		fetchers: map[string]Fetcher{},
		log:      zerolog.Nop(),
		rejected: map[string]bool{},
	}
	for _, o := range opts {
		o(s)
	}
	if _, ok := s.fetchers["http"]; !ok {
		hf := NewHTTPFetcher(0, DefaultChunkSize, s.log)
		s.fetchers["http"] = hf
		s.fetchers["https"] = hf
	}
	if _, ok := s.fetchers[""]; !ok {
		s.fetchers[""] = FileFetcher{}
		s.fetchers["file"] = FileFetcher{}
	}
	return s
}

// Spec returns the artifact spec.
func (s *Store) Spec() Spec { return s.spec }

// Stage returns a candidate file: the final path if present, otherwise a
// fresh download from the first usable source.
func (s *Store) Stage(ctx context.Context) (Staged, error) {
	if fsutil.FileExists(s.spec.Path) {
		return Staged{Path: s.spec.Path, Source: s.spec.Path, Existing: true}, nil
	}
	sources := s.candidates()
	if len(sources) == 0 {
		return Staged{}, apperr.New(apperr.ModelFailed, "artifact %s not found and no download source configured", s.spec.Path)
	}
	var errs []error
	for _, src := range sources {
		staged, err := s.download(ctx, src)
		if err == nil {
			return staged, nil
		}
		if ctx.Err() != nil {
			return Staged{}, ctx.Err()
		}
		s.log.Warn().Err(err).Str("source", redact(src)).Msg("artifact source failed")
		errs = append(errs, err)
	}
	return Staged{}, errors.Join(errs...)
}

func (s *Store) candidates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fresh []string
	for _, src := range s.spec.Sources {
		if !s.rejected[src] {
			fresh = append(fresh, src)
		}
	}
	if len(fresh) == 0 {
		// every source has misbehaved once; give them all another chance
		s.rejected = map[string]bool{}
		return append([]string(nil), s.spec.Sources...)
	}
	return fresh
}

func (s *Store) download(ctx context.Context, src string) (Staged, error) {
	scheme := schemeOf(src)
	f, ok := s.fetchers[scheme]
	if !ok {
		return Staged{}, fmt.Errorf("no fetcher for %q sources", scheme)
	}
	tmp, err := fsutil.TempSibling(s.spec.Path)
	if err != nil {
		return Staged{}, err
	}
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		_ = fsutil.RemoveIfExists(tmp)
		return Staged{}, err
	}
	_, ferr := f.Fetch(ctx, src, out)
	cerr := out.Close()
	if ferr == nil {
		ferr = cerr
	}
	if ferr != nil {
		_ = fsutil.RemoveIfExists(tmp)
		return Staged{}, ferr
	}
	return Staged{Path: tmp, Source: src}, nil
}

// Check validates a staged candidate and returns its size.
func (s *Store) Check(st Staged) (int64, error) {
	return Validate(st.Path, s.spec)
}

// Commit moves a validated download to the final path. Existing finals are
// left untouched.
func (s *Store) Commit(st Staged) (string, error) {
	if st.Existing {
		return st.Path, nil
	}
	if err := os.Rename(st.Path, s.spec.Path); err != nil {
		_ = fsutil.RemoveIfExists(st.Path)
		return "", fmt.Errorf("commit artifact: %w", err)
	}
	return s.spec.Path, nil
}

// Discard deletes a rejected candidate, including a corrupt final file, and
// remembers its source so the next Stage prefers an alternative.
func (s *Store) Discard(st Staged) error {
	if !st.Existing {
		s.mu.Lock()
		s.rejected[st.Source] = true
		s.mu.Unlock()
	}
	return fsutil.RemoveIfExists(st.Path)
}
