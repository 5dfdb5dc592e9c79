package syncengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/joe/server-sync/internal/remote"
)

// RetrieveFiles brings the local tree up to date with the remote.
//
// Order: wait while the busy flag is set, back up the whole local tree,
// then for every remote archive whose content differs from the local files,
// delete those local files, download the archive and unpack it. Local files
// that no remote archive covers are left untouched.
//
// ctx only bounds the busy-flag wait; transfers run to completion.
func (e *Engine) RetrieveFiles(ctx context.Context) (*RetrieveResult, error) {
	err := e.waitWhileBusy(ctx)
	if err != nil {
		return nil, err
	}

	result, err := e.retrieve(ctx)
	if err != nil {
		e.emit(ErrorOccurred{Phase: "retrieve", Err: err})

		return nil, err
	}

	e.emit(RetrieveComplete{Result: result})

	return result, nil
}

func (e *Engine) retrieve(ctx context.Context) (*RetrieveResult, error) {
	records, err := e.scanLocal()
	if err != nil {
		return nil, err
	}

	backupPath, err := e.createBackup(records)
	if err != nil {
		return nil, err
	}

	e.logger.Info("backed up server directory", "backup", backupPath, "files", len(records))
	e.emit(BackupCreated{Path: backupPath, Files: len(records)})

	result := &RetrieveResult{BackupPath: backupPath}

	table, err := e.fetchDigestTable()
	if err != nil {
		return nil, err
	}

	listing, err := e.remote.ListFilesRecursively(FilesDir).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list remote files: %w", err)
	}

	if listing.Cardinality() == 0 {
		e.logger.Info("remote holds no files, nothing to retrieve")

		return result, nil
	}

	archives := listing.ToSlice()
	sort.Strings(archives)

	toDownload, err := e.planDownloads(ctx, archives, table)
	if err != nil {
		return nil, err
	}

	for _, name := range archives {
		if !slices.Contains(toDownload, name) {
			result.Skipped = append(result.Skipped, name)
			e.emit(TransferSkipped{Name: name})
		}
	}

	result.FilesDeleted = e.deleteMembers(toDownload, table)

	written, err := e.downloadAndUnpack(toDownload, table)
	result.Downloaded = written.archives
	result.FilesWritten = written.files

	if err != nil {
		return nil, err
	}

	e.logger.Info("retrieved files",
		"downloaded", len(result.Downloaded), "skipped", len(result.Skipped), "deleted", result.FilesDeleted)

	return result, nil
}

// waitWhileBusy polls the busy flag until it is clear.
func (e *Engine) waitWhileBusy(ctx context.Context) error {
	busy, err := e.IsBusy()
	if err != nil {
		return err
	}

	if !busy {
		return nil
	}

	since := e.TimeProvider.Now()
	ticker := e.TimeProvider.NewTicker(e.BusyPollInterval)

	defer ticker.Stop()

	for busy {
		e.logger.Info("another participant is uploading, waiting", "poll", e.BusyPollInterval)
		e.emit(BusyWaiting{Since: since})

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for busy flag: %w", ctx.Err())
		case <-ticker.C():
		}

		busy, err = e.IsBusy()
		if err != nil {
			return err
		}
	}

	return nil
}

// planDownloads picks the archives whose members differ from local content.
// An archive with no digest-table members is always downloaded.
func (e *Engine) planDownloads(ctx context.Context, archives []string, table DigestTable) ([]string, error) {
	paths := make([]string, 0, len(table))
	for rel := range table {
		paths = append(paths, rel)
	}

	local, err := e.localDigests(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to hash local files: %w", err)
	}

	toDownload := make([]string, 0)

	for _, name := range archives {
		members := table.Members(name)
		if len(members) == 0 {
			toDownload = append(toDownload, name)

			continue
		}

		for _, rel := range members {
			if !local[rel].Equal(table[rel].Digest) {
				toDownload = append(toDownload, name)

				break
			}
		}
	}

	return toDownload, nil
}

// deleteMembers removes the local copies of every file the given archives
// will replace. Failures are logged and skipped.
func (e *Engine) deleteMembers(archives []string, table DigestTable) int {
	deleted := 0

	for _, name := range archives {
		for _, rel := range table.Members(name) {
			err := e.FileSystem.Remove(e.localPath(rel))
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					e.logger.Warn("could not delete stale local file", "path", rel, "err", err)
				}

				continue
			}

			deleted++
		}
	}

	if deleted > 0 {
		e.emit(LocalFilesDeleted{Count: deleted})
	}

	return deleted
}

type unpacked struct {
	archives []string
	files    int
}

// downloadAndUnpack queues every download at once and unpacks each archive
// as its transfer completes.
func (e *Engine) downloadAndUnpack(archives []string, table DigestTable) (unpacked, error) {
	var done unpacked

	stagingDir := e.internalPath(StagingDir, FilesDir)
	tasks := make([]*remote.Task[struct{}], len(archives))
	staged := make([]string, len(archives))

	for i, name := range archives {
		staged[i] = filepath.Join(stagingDir, filepath.FromSlash(name))
		tasks[i] = e.remote.DownloadFile(remoteArchivePath(name), staged[i])
		e.emit(TransferStarted{Direction: "download", Name: name, Size: archiveSize(table, name)})
	}

	defer func() { _ = os.RemoveAll(stagingDir) }()

	var errs []error

	for i, name := range archives {
		_, err := tasks[i].Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to download %s: %w", name, err))

			continue
		}

		files, err := e.packager.UnpackFile(staged[i], e.Root)
		_ = os.Remove(staged[i])

		if err != nil {
			errs = append(errs, fmt.Errorf("failed to unpack %s: %w", name, err))

			continue
		}

		done.archives = append(done.archives, name)
		done.files += len(files)
		e.emit(TransferComplete{Direction: "download", Name: name})
	}

	return done, errors.Join(errs...)
}

func archiveSize(table DigestTable, name string) int64 {
	var total int64

	for _, entry := range table {
		if entry.Archive == name {
			total += entry.Size
		}
	}

	return total
}
