package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = "server-sync.lock"

var errServerDirLocked = errors.New("another server-sync is already using this server directory")

// lockServerDir takes an exclusive lock inside the bookkeeping directory so
// two instances never sync the same tree.
func lockServerDir(internalDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(internalDir, 0o755); err != nil { //nolint:mnd // standard directory mode
		return nil, fmt.Errorf("creating %s: %w", internalDir, err)
	}

	lock := flock.New(filepath.Join(internalDir, lockFileName))

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", internalDir, err)
	}

	if !locked {
		return nil, errServerDirLocked
	}

	return lock, nil
}
