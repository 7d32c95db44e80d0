package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"

	"breedserve/internal/apperr"
)

// Reason names the check that rejected an artifact.
type Reason string

const (
	ReasonMissing     Reason = "missing"
	ReasonTooSmall    Reason = "too_small"
	ReasonPlaceholder Reason = "placeholder"
	ReasonSignature   Reason = "bad_signature"
	ReasonDigest      Reason = "digest_mismatch"
)

// CorruptError is the cause carried by an ArtifactCorrupt apperr.Error.
type CorruptError struct {
	Path   string
	Reason Reason
	Detail string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Detail, e.Reason)
}

// ReasonOf extracts the rejection reason from a validation error.
func ReasonOf(err error) Reason {
	var ce *CorruptError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

func corrupt(path string, reason Reason, format string, args ...any) error {
	ce := &CorruptError{Path: path, Reason: reason, Detail: fmt.Sprintf(format, args...)}
	return &apperr.Error{Kind: apperr.ArtifactCorrupt, Message: "artifact rejected", Err: ce}
}

// Validate checks the file at path against spec: minimum size, placeholder
// records, container signature and, when configured, the content digest.
// It never modifies the file.
func Validate(path string, spec Spec) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, corrupt(path, ReasonMissing, "file does not exist")
		}
		return 0, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := fi.Size()

	head := make([]byte, headLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return size, err
	}
	head = head[:n]

	// Placeholders are checked before size so a pointer is reported as such
	// rather than as a generic truncation.
	if kind := placeholderKind(head); kind != "" {
		return size, corrupt(path, ReasonPlaceholder, "file is a %s (%s)", kind, humanize.Bytes(uint64(size)))
	}
	if size < spec.MinSize {
		return size, corrupt(path, ReasonTooSmall, "size %s below minimum %s",
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(spec.MinSize)))
	}
	if !spec.Format.Match(head) {
		return size, corrupt(path, ReasonSignature, "leading bytes % x do not match %s signature", head[:min(len(head), 8)], spec.Format)
	}
	if spec.Digest != "" {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return size, err
		}
		verifier := spec.Digest.Verifier()
		if _, err := io.Copy(verifier, f); err != nil {
			return size, err
		}
		if !verifier.Verified() {
			got, _ := digestFile(path, spec.Digest.Algorithm())
			return size, corrupt(path, ReasonDigest, "digest %s, want %s", got, spec.Digest)
		}
	}
	return size, nil
}

func digestFile(path string, alg digest.Algorithm) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return alg.FromReader(f)
}
