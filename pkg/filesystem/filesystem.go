// Package filesystem abstracts the two trees a sync pass touches: the local
// server directory and the remote rendezvous directory reached over FTP or SFTP.
package filesystem

import (
	"fmt"
	"os"
)

// PathFilter decides whether a relative path takes part in a scan.
type PathFilter interface {
	ShouldInclude(relativePath string) bool
}

// FileSystem is the local side of a sync pass.
// This allows for dependency injection and testing with a temporary tree.
type FileSystem interface {
	// Scan returns an iterator over all entries in a directory tree.
	Scan(path string) FileScanner

	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	Stat(path string) (os.FileInfo, error)
}

// RealFileSystem implements FileSystem using the os package.
type RealFileSystem struct {
	filter PathFilter
}

// NewRealFileSystem creates a RealFileSystem. Entries rejected by filter are
// left out of scans; excluded directories are not descended into.
// A nil filter includes everything.
func NewRealFileSystem(filter PathFilter) *RealFileSystem {
	return &RealFileSystem{filter: filter}
}

// MkdirAll creates a directory and all necessary parents.
func (fs *RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	err := os.MkdirAll(path, perm)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// Remove removes a file or empty directory.
func (fs *RealFileSystem) Remove(path string) error {
	err := os.Remove(path)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

// Scan returns an iterator over all entries in a directory tree.
func (fs *RealFileSystem) Scan(path string) FileScanner {
	return newRealFileScanner(path, fs.filter)
}

// Stat returns file information.
func (fs *RealFileSystem) Stat(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return info, nil
}
