package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Format identifies the container format of a weights file by its leading bytes.
type Format string

const (
	// FormatAny disables the signature check.
	FormatAny Format = ""
	// FormatONNX is a serialized onnx.ModelProto; field 1 (ir_version, varint) comes first.
	FormatONNX Format = "onnx"
	// FormatPyTorchZip is the zip container written by torch.save since 1.6.
	FormatPyTorchZip Format = "pytorch-zip"
	// FormatPyTorchPickle is the legacy pickle stream written by older torch.save.
	FormatPyTorchPickle Format = "pytorch-pickle"
	// FormatSafetensors starts with a little-endian u64 header length followed by '{'.
	FormatSafetensors Format = "safetensors"
)

// headLen is how many leading bytes are inspected for signatures and pointers.
const headLen = 512

// ParseFormat validates a format name from configuration.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatAny, FormatONNX, FormatPyTorchZip, FormatPyTorchPickle, FormatSafetensors:
		return f, nil
	default:
		return "", fmt.Errorf("unknown artifact format %q", s)
	}
}

// Match reports whether head begins with the format's signature.
func (f Format) Match(head []byte) bool {
	switch f {
	case FormatAny:
		return true
	case FormatONNX:
		return len(head) > 1 && head[0] == 0x08
	case FormatPyTorchZip:
		return bytes.HasPrefix(head, []byte("PK\x03\x04"))
	case FormatPyTorchPickle:
		return len(head) > 1 && head[0] == 0x80 && head[1] >= 2 && head[1] <= 5
	case FormatSafetensors:
		if len(head) < 9 {
			return false
		}
		n := binary.LittleEndian.Uint64(head[:8])
		return n > 0 && n < 100<<20 && head[8] == '{'
	}
	return false
}

var (
	lfsPointerPrefix = []byte("version https://git-lfs.github.com/spec/")
	htmlPrefixes     = [][]byte{[]byte("<!doctype html"), []byte("<html"), []byte("<?xml")}
)

// placeholderKind reports what kind of stand-in file head looks like, or ""
// when it looks like real content. Hosting services answer with an HTML page
// or an XML error for missing objects, and repositories without LFS checkout
// hold a small pointer record instead of the weights.
func placeholderKind(head []byte) string {
	if bytes.HasPrefix(head, lfsPointerPrefix) {
		return "git-lfs pointer"
	}
	trimmed := bytes.ToLower(bytes.TrimLeft(head, " \t\r\n\uFEFF"))
	for _, p := range htmlPrefixes {
		if bytes.HasPrefix(trimmed, p) {
			return "markup error page"
		}
	}
	return ""
}
