package syncengine

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joe/server-sync/pkg/archive"
)

const (
	backupPrefix     = "backup-"
	backupTimeLayout = "20060102-150405"
)

// createBackup packs records into a new timestamped archive under the
// backups directory and prunes old backups. Unreadable files are logged and
// left out of the archive.
func (e *Engine) createBackup(records []FileRecord) (string, error) {
	dir := e.internalPath(BackupsDir)
	stamp := e.TimeProvider.Now().Format(backupTimeLayout)
	path := filepath.Join(dir, backupPrefix+stamp+ArchiveSuffix)

	for n := 1; fileExists(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s%s-%d%s", backupPrefix, stamp, n, ArchiveSuffix))
	}

	entries := make([]archive.Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, archive.Entry{
			RelativePath: record.RelativePath,
			AbsolutePath: e.localPath(record.RelativePath),
		})
	}

	err := e.packager.PackFile(path, entries)
	if err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}

	e.pruneBackups()

	return path, nil
}

// pruneBackups deletes the oldest backups beyond KeepBackups.
func (e *Engine) pruneBackups() {
	if e.KeepBackups <= 0 {
		return
	}

	dirEntries, err := os.ReadDir(e.internalPath(BackupsDir))
	if err != nil {
		e.logger.Warn("could not list backups", "err", err)

		return
	}

	backups := make([]string, 0, len(dirEntries))

	for _, entry := range dirEntries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, ArchiveSuffix) {
			backups = append(backups, name)
		}
	}

	if len(backups) <= e.KeepBackups {
		return
	}

	slices.SortFunc(backups, func(a, b string) int {
		stampA, seqA := backupOrder(a)
		stampB, seqB := backupOrder(b)

		return cmp.Or(strings.Compare(stampA, stampB), cmp.Compare(seqA, seqB))
	})

	for _, name := range backups[:len(backups)-e.KeepBackups] {
		err := os.Remove(e.internalPath(BackupsDir, name))
		if err != nil {
			e.logger.Warn("could not prune backup", "backup", name, "err", err)

			continue
		}

		e.logger.Debug("pruned backup", "backup", name)
	}
}

// backupOrder splits a backup name into its timestamp and the collision
// counter added when two backups land in the same second (0 for none).
func backupOrder(name string) (string, int) {
	base := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), ArchiveSuffix)
	if len(base) <= len(backupTimeLayout) {
		return base, 0
	}

	seq, err := strconv.Atoi(strings.TrimPrefix(base[len(backupTimeLayout):], "-"))
	if err != nil {
		return base, 0
	}

	return base[:len(backupTimeLayout)], seq
}

func fileExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}
