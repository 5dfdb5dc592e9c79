package filesystem

import (
	"fmt"
	"path/filepath"

	"github.com/kr/fs"
)

// newRealFileScanner creates a scanner over a local directory tree.
func newRealFileScanner(root string, filter PathFilter) FileScanner {
	return newCollectingScanner(func() ([]FileInfo, error) {
		return walkLocal(root, filter)
	})
}

func walkLocal(root string, filter PathFilter) ([]FileInfo, error) {
	files := make([]FileInfo, 0)
	walker := fs.Walk(root)

	for walker.Step() {
		if err := walker.Err(); err != nil { //nolint:noinlineerr // Inline error check is idiomatic for walker error handling
			return nil, fmt.Errorf("error scanning %s: %w", root, err)
		}

		relPath, err := filepath.Rel(root, walker.Path())
		if err != nil {
			return nil, fmt.Errorf("failed to get relative path for %s: %w", walker.Path(), err)
		}

		// Skip the root directory itself
		if relPath == "." {
			continue
		}

		stat := walker.Stat()

		if filter != nil && !filter.ShouldInclude(filepath.ToSlash(relPath)) {
			if stat.IsDir() {
				walker.SkipDir()
			}

			continue
		}

		files = append(files, FileInfo{
			RelativePath: relPath,
			Size:         stat.Size(),
			ModTime:      stat.ModTime(),
			IsDir:        stat.IsDir(),
		})
	}

	return files, nil
}
