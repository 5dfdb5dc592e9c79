// Package digest computes content fingerprints used to decide which files need transfer.
package digest

import (
	"bytes"
	"crypto/md5" //nolint:gosec // MD5 is a change detector here, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Exported constants.
const (
	// Size is the length of a non-empty digest in bytes.
	Size = md5.Size
)

// Exported variables.
var (
	ErrInvalidDigest = errors.New("invalid digest")
)

// Digest is the MD5 fingerprint of a file's bytes.
// The zero value is the empty sentinel used for missing or unreadable files.
type Digest []byte

// Empty returns the sentinel digest.
func Empty() Digest {
	return Digest{}
}

// IsEmpty reports whether d is the sentinel.
func (d Digest) IsEmpty() bool {
	return len(d) == 0
}

// Equal reports whether two digests fingerprint the same content.
func (d Digest) Equal(other Digest) bool {
	return bytes.Equal(d, other)
}

// String returns the lowercase hex form, or "" for the sentinel.
func (d Digest) String() string {
	return hex.EncodeToString(d)
}

// Parse decodes the hex form produced by String.
func Parse(s string) (Digest, error) {
	if s == "" {
		return Empty(), nil
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
	}

	if len(raw) != Size {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidDigest, Size, len(raw))
	}

	return Digest(raw), nil
}

// Bytes fingerprints an in-memory buffer.
func Bytes(data []byte) Digest {
	sum := md5.Sum(data) //nolint:gosec // see import

	return Digest(sum[:])
}

// Reader fingerprints everything readable from r.
func Reader(r io.Reader) (Digest, error) {
	hasher := md5.New() //nolint:gosec // see import

	_, err := io.Copy(hasher, r)
	if err != nil {
		return nil, fmt.Errorf("failed to hash content: %w", err)
	}

	return Digest(hasher.Sum(nil)), nil
}

// File fingerprints the file at path. A missing file yields the sentinel.
// Read failures are logged and also yield the sentinel so a single bad file
// never aborts a sync pass.
func File(path string) Digest {
	return NewHasher(nil).File(path)
}

// Hasher computes file digests, logging through its own logger.
type Hasher struct {
	logger *slog.Logger
}

// NewHasher returns a Hasher. A nil logger falls back to slog.Default().
func NewHasher(logger *slog.Logger) *Hasher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hasher{logger: logger}
}

// File fingerprints the file at path, see the package-level File.
func (h *Hasher) File(path string) Digest {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Empty()
	}

	if err != nil {
		h.logger.Warn("could not open file for hashing", "path", path, "err", err)

		return Empty()
	}

	defer func() { _ = file.Close() }()

	sum, err := Reader(file)
	if err != nil {
		h.logger.Warn("could not read file for hashing", "path", path, "err", err)

		return Empty()
	}

	return sum
}
