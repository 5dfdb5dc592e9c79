package filesystem

import (
	"time"
)

// FileScanner is an iterator over files in a directory.
// It provides a simple Next pattern for traversing directory contents.
type FileScanner interface {
	// Next advances to the next file and returns its info.
	// Returns (FileInfo{}, false) when done or on error.
	// Check Err() after Next() returns false to distinguish between end-of-scan and error.
	Next() (FileInfo, bool)

	// Err returns any error that occurred during scanning.
	// Should be checked after Next() returns false.
	Err() error
}

// FileInfo contains metadata about a file.
// This is our own type (not os.FileInfo) to make it easier to work with.
type FileInfo struct {
	// RelativePath is the path relative to the scan root.
	// Remote scans always use forward slashes.
	RelativePath string

	// Size is the file size in bytes
	Size int64

	// ModTime is the modification time (zero when the backend cannot report it)
	ModTime time.Time

	// IsDir indicates if this is a directory
	IsDir bool
}

// collectingScanner walks its tree on the first Next call and then replays
// the collected entries. Backends plug in the walk.
type collectingScanner struct {
	walk    func() ([]FileInfo, error)
	files   []FileInfo
	index   int
	err     error
	scanned bool
}

func newCollectingScanner(walk func() ([]FileInfo, error)) *collectingScanner {
	return &collectingScanner{walk: walk, index: -1}
}

// Err returns any error that occurred during scanning.
func (s *collectingScanner) Err() error {
	return s.err
}

// Next advances to the next file and returns its info.
func (s *collectingScanner) Next() (FileInfo, bool) {
	// Scan on first call
	if !s.scanned {
		s.files, s.err = s.walk()
		s.scanned = true
	}

	if s.err != nil {
		return FileInfo{}, false
	}

	s.index++
	if s.index >= len(s.files) {
		return FileInfo{}, false
	}

	return s.files[s.index], true
}

// newErrorScanner returns a scanner that fails immediately.
func newErrorScanner(err error) FileScanner {
	return newCollectingScanner(func() ([]FileInfo, error) { return nil, err })
}
