package syncengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/joe/server-sync/internal/remote"
	"github.com/joe/server-sync/pkg/archive"
)

// plannedUpload is one archive to build and send.
type plannedUpload struct {
	name    string
	members []FileRecord
}

// SaveFiles sends local changes to the remote.
//
// The busy flag is set before anything is uploaded and is cleared on every
// return path, including failures, so a crashed save never locks the other
// participants out. Small files travel together in one bundle; every large
// file gets its own archive. Archives whose digests already match the remote
// table are skipped. The digest table is republished with exactly the
// archives that were stored.
func (e *Engine) SaveFiles(ctx context.Context) (result *SaveResult, err error) {
	err = e.setBusy(true)

	defer func() {
		clearErr := e.setBusy(false)
		if clearErr != nil {
			err = errors.Join(err, clearErr)
		}

		if err != nil {
			e.emit(ErrorOccurred{Phase: "save", Err: err})
		}

		if result != nil {
			e.emit(SaveComplete{Result: result})
		}
	}()

	if err != nil {
		return nil, err
	}

	return e.save(ctx)
}

//nolint:cyclop,funlen // sequential protocol steps read best in one place
func (e *Engine) save(ctx context.Context) (*SaveResult, error) {
	records, err := e.scanLocal()
	if err != nil {
		return nil, err
	}

	err = e.hashAll(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to hash local files: %w", err)
	}

	table, err := e.fetchDigestTable()
	if err != nil {
		return nil, err
	}

	err = checkRelated(records, table)
	if err != nil {
		return nil, err
	}

	listing, err := e.remote.ListFilesRecursively(FilesDir).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list remote files: %w", err)
	}

	uploads, skipped, stale := e.planUploads(records, table, listing)

	result := &SaveResult{Skipped: skipped}
	for _, name := range skipped {
		e.emit(TransferSkipped{Name: name})
	}

	published := table.Clone()
	changed := false

	uploadErrs := e.upload(uploads, published, result)
	if len(result.Uploaded) > 0 {
		changed = true
	}

	errs := uploadErrs

	// Stale archives are only dropped once every new archive is in place, so
	// a file moving between archives is never missing from both.
	if len(uploadErrs) == 0 {
		deleted, deleteErrs := e.deleteStale(stale, published)
		result.RemoteDeleted = deleted
		errs = append(errs, deleteErrs...)

		if len(deleted) > 0 {
			changed = true
		}
	}

	if changed {
		err = e.publishDigestTable(published)
		if err != nil {
			errs = append(errs, err)
		}
	}

	result.Errors = errs

	e.logger.Info("saved files",
		"uploaded", len(result.Uploaded), "skipped", len(result.Skipped),
		"remote_deleted", len(result.RemoteDeleted), "errors", len(errs))

	if len(errs) > 0 {
		return result, fmt.Errorf("%w: %w", ErrSaveIncomplete, errors.Join(errs...))
	}

	return result, nil
}

// planUploads decides which archives differ from the remote. It returns the
// uploads, the archive names that already match and the remote archives no
// local file maps to any more.
func (e *Engine) planUploads(
	records []FileRecord,
	table DigestTable,
	listing mapset.Set[string],
) ([]plannedUpload, []string, []string) {
	var (
		uploads []plannedUpload
		skipped []string
		small   []FileRecord
		wanted  = mapset.NewSet[string]()
	)

	for _, record := range records {
		if e.bundled(record) {
			small = append(small, record)

			continue
		}

		name := largeArchiveName(record.RelativePath)
		wanted.Add(name)

		entry, known := table[record.RelativePath]
		if known && entry.Archive == name && entry.Digest.Equal(record.Digest) && listing.Contains(name) {
			skipped = append(skipped, name)

			continue
		}

		uploads = append(uploads, plannedUpload{name: name, members: []FileRecord{record}})
	}

	if len(small) > 0 {
		wanted.Add(SmallFilesArchive)

		if bundleChanged(small, table, listing) {
			uploads = append(uploads, plannedUpload{name: SmallFilesArchive, members: small})
		} else {
			skipped = append(skipped, SmallFilesArchive)
		}
	}

	stale := listing.Difference(wanted).ToSlice()
	sort.Strings(stale)
	sort.Strings(skipped)

	return uploads, skipped, stale
}

// checkRelated fails when the remote already holds files and the local tree
// has none of them. That is a wrong or empty server directory, and saving it
// would delete every remote archive.
func checkRelated(records []FileRecord, table DigestTable) error {
	if len(table) == 0 {
		return nil
	}

	for _, record := range records {
		if _, known := table[record.RelativePath]; known {
			return nil
		}
	}

	return fmt.Errorf("%w: %d local files, %d remote files", ErrUnrelatedServerDir, len(records), len(table))
}

func bundleChanged(small []FileRecord, table DigestTable, listing mapset.Set[string]) bool {
	if !listing.Contains(SmallFilesArchive) {
		return true
	}

	remoteMembers := table.Members(SmallFilesArchive)
	if len(remoteMembers) != len(small) {
		return true
	}

	for _, record := range small {
		entry, known := table[record.RelativePath]
		if !known || entry.Archive != SmallFilesArchive || !entry.Digest.Equal(record.Digest) {
			return true
		}
	}

	return false
}

// upload packs each planned archive into staging, queues all uploads and
// records every stored archive in published.
func (e *Engine) upload(uploads []plannedUpload, published DigestTable, result *SaveResult) []error {
	if len(uploads) == 0 {
		return nil
	}

	stagingDir := e.internalPath(StagingDir, FilesDir)
	defer func() { _ = os.RemoveAll(stagingDir) }()

	var errs []error

	tasks := make([]*remote.Task[struct{}], len(uploads))
	sizes := make([]int64, len(uploads))

	for i, planned := range uploads {
		staged := filepath.Join(stagingDir, filepath.FromSlash(planned.name))

		entries := make([]archive.Entry, 0, len(planned.members))
		for _, member := range planned.members {
			entries = append(entries, archive.Entry{
				RelativePath: member.RelativePath,
				AbsolutePath: e.localPath(member.RelativePath),
			})
		}

		err := e.packager.PackFile(staged, entries)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to pack %s: %w", planned.name, err))

			continue
		}

		if info, statErr := os.Stat(staged); statErr == nil {
			sizes[i] = info.Size()
		}

		tasks[i] = e.remote.UploadFile(staged, remoteArchivePath(planned.name))
		e.emit(TransferStarted{Direction: "upload", Name: planned.name, Size: sizes[i]})
	}

	for i, planned := range uploads {
		if tasks[i] == nil {
			continue
		}

		_, err := tasks[i].Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to upload %s: %w", planned.name, err))

			continue
		}

		published.DropArchive(planned.name)

		for _, member := range planned.members {
			published[member.RelativePath] = TableEntry{
				Digest:  member.Digest,
				Size:    member.Size,
				Archive: planned.name,
			}
		}

		result.Uploaded = append(result.Uploaded, planned.name)
		result.BytesUploaded += sizes[i]
		e.emit(TransferComplete{Direction: "upload", Name: planned.name})
	}

	slices.Sort(result.Uploaded)

	return errs
}

// deleteStale removes remote archives that no local file maps to.
func (e *Engine) deleteStale(stale []string, published DigestTable) ([]string, []error) {
	tasks := make([]*remote.Task[struct{}], len(stale))
	for i, name := range stale {
		tasks[i] = e.remote.Delete(remoteArchivePath(name))
	}

	var (
		deleted []string
		errs    []error
	)

	for i, name := range stale {
		_, err := tasks[i].Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete stale archive %s: %w", name, err))

			continue
		}

		published.DropArchive(name)
		deleted = append(deleted, name)
	}

	return deleted, errs
}
