// Package archive packs file sets into zip archives with normalised metadata
// and unpacks them back onto a directory tree.
//
// Every entry carries the same modification time and entries are written in
// path order, so packing unchanged content twice produces identical bytes.
// That property keeps archive digests stable across no-op sync cycles.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// Exported variables.
var (
	ErrMalformedArchive = errors.New("malformed archive")
	ErrUnsafeEntry      = errors.New("archive entry escapes destination")

	// EntryTime is stamped on every entry. 1980-01-01 is the earliest
	// instant the zip DOS date field can represent.
	EntryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // fixed format constant
)

// Entry is one item to pack.
// RelativePath is stored in the archive using forward slashes.
// Content, when non-nil, is packed instead of reading AbsolutePath.
type Entry struct {
	RelativePath string
	AbsolutePath string
	Content      []byte
	IsDir        bool
}

// Packager builds and extracts archives.
type Packager struct {
	logger *slog.Logger
}

// NewPackager returns a Packager. A nil logger falls back to slog.Default().
func NewPackager(logger *slog.Logger) *Packager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Packager{logger: logger}
}

// Pack builds an archive in memory.
func (p *Packager) Pack(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer

	err := p.PackTo(&buf, entries)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// PackFile builds an archive at dest, creating parent directories.
func (p *Packager) PackFile(dest string, entries []Entry) error {
	err := os.MkdirAll(filepath.Dir(dest), 0o755) //nolint:mnd // standard directory permission
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", dest, err)
	}

	err = p.PackTo(file, entries)
	closeErr := file.Close()

	if err != nil {
		return err
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close archive %s: %w", dest, closeErr)
	}

	return nil
}

// PackTo streams an archive of entries to w.
// Entries whose source cannot be read are logged and left out.
func (p *Packager) PackTo(w io.Writer, entries []Entry) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return ToSlash(sorted[i].RelativePath) < ToSlash(sorted[j].RelativePath)
	})

	zw := zip.NewWriter(w)

	for _, entry := range sorted {
		err := p.writeEntry(zw, entry)
		if err != nil {
			_ = zw.Close()

			return err
		}
	}

	err := zw.Close()
	if err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}

	return nil
}

// Unpack extracts an in-memory archive under root and returns the relative
// paths of the files written.
func (p *Packager) Unpack(data []byte, root string) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedArchive, err)
	}

	return p.extract(reader.File, root), nil
}

// UnpackFile extracts the archive stored at archivePath under root.
func (p *Packager) UnpackFile(archivePath, root string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedArchive, archivePath, err)
	}

	defer func() { _ = reader.Close() }()

	return p.extract(reader.File, root), nil
}

// ReadEntries returns the content of every file entry keyed by its stored path.
func ReadEntries(data []byte) (map[string][]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedArchive, err)
	}

	contents := make(map[string][]byte, len(reader.File))

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		content, err := readZipFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %w", ErrMalformedArchive, file.Name, err)
		}

		contents[file.Name] = content
	}

	return contents, nil
}

// ToSlash converts a local relative path to the stored form.
func ToSlash(relativePath string) string {
	return strings.TrimPrefix(filepath.ToSlash(relativePath), "./")
}

// SafeJoin resolves a stored entry name under root, rejecting names that
// would land outside it.
func SafeJoin(root, name string) (string, error) {
	normalized := strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(normalized) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
	}

	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
		}
	}

	cleaned := path.Clean(normalized)
	if cleaned == "." {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
	}

	return filepath.Join(root, filepath.FromSlash(cleaned)), nil
}

func (p *Packager) extract(files []*zip.File, root string) []string {
	written := make([]string, 0, len(files))

	for _, file := range files {
		target, err := SafeJoin(root, file.Name)
		if err != nil {
			p.logger.Warn("skipping archive entry", "entry", file.Name, "err", err)

			continue
		}

		if file.FileInfo().IsDir() {
			mkErr := os.MkdirAll(target, 0o755) //nolint:mnd // standard directory permission
			if mkErr != nil {
				p.logger.Warn("could not create directory", "path", target, "err", mkErr)
			}

			continue
		}

		err = writeFile(file, target)
		if err != nil {
			p.logger.Warn("could not extract archive entry", "entry", file.Name, "path", target, "err", err)

			continue
		}

		written = append(written, strings.TrimSuffix(file.Name, "/"))
	}

	return written
}

func (p *Packager) writeEntry(zw *zip.Writer, entry Entry) error {
	name := ToSlash(entry.RelativePath)
	if name == "" {
		return nil
	}

	var source io.Reader

	switch {
	case entry.IsDir:
		name = strings.TrimSuffix(name, "/") + "/"
	case entry.Content != nil:
		source = bytes.NewReader(entry.Content)
	default:
		file, err := os.Open(entry.AbsolutePath)
		if err != nil {
			p.logger.Warn("skipping unreadable file", "path", entry.AbsolutePath, "err", err)

			return nil
		}

		defer func() { _ = file.Close() }()

		source = file
	}

	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: EntryTime,
	}
	if entry.IsDir {
		header.Method = zip.Store
	}

	dest, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}

	if source == nil {
		return nil
	}

	_, err = io.Copy(dest, source)
	if err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}

	return nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}

	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc) //nolint:wrapcheck // wrapped by caller
}

func writeFile(file *zip.File, target string) error {
	err := os.MkdirAll(filepath.Dir(target), 0o755) //nolint:mnd // standard directory permission
	if err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry: %w", err)
	}

	defer func() { _ = rc.Close() }()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(out, rc)
	closeErr := out.Close()

	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	return nil
}
