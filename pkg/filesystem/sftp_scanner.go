package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/pkg/sftp"
)

// newSFTPScanner creates a scanner for the given SFTP directory.
func newSFTPScanner(client *sftp.Client, root string) FileScanner {
	return newCollectingScanner(func() ([]FileInfo, error) {
		return walkSFTP(client, root)
	})
}

// walkSFTP walks the remote directory tree and collects all entries.
func walkSFTP(client *sftp.Client, root string) ([]FileInfo, error) {
	files := make([]FileInfo, 0)
	walker := client.Walk(root)

	for walker.Step() {
		if err := walker.Err(); err != nil { //nolint:noinlineerr // Inline error check is idiomatic for walker error handling
			if walker.Path() == root && errors.Is(err, os.ErrNotExist) {
				return files, nil
			}

			return nil, fmt.Errorf("error scanning SFTP directory: %w", err)
		}

		fullPath := walker.Path()

		// Skip the root directory itself
		if fullPath == root {
			continue
		}

		relPath, err := relativePath(root, fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to get relative path for %s: %w", fullPath, err)
		}

		stat := walker.Stat()
		files = append(files, FileInfo{
			RelativePath: relPath,
			Size:         stat.Size(),
			ModTime:      stat.ModTime(),
			IsDir:        stat.IsDir(),
		})
	}

	return files, nil
}

// relativePath computes the relative path from root to target.
// Uses path package (not filepath) since remote paths always use forward slashes.
func relativePath(root, target string) (string, error) {
	root = path.Clean(root)
	target = path.Clean(target)

	if root == "." {
		return target, nil
	}

	// Ensure root ends with /
	if root != "/" {
		root += "/"
	}

	if len(target) < len(root) || target[:len(root)] != root {
		return "", fmt.Errorf("target %s is not under root %s", target, root) //nolint:err113 // Path validation error with actual paths
	}

	relPath := target[len(root):]
	if relPath == "" {
		return ".", nil
	}

	return relPath, nil
}
