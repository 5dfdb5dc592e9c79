package syncengine

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joe/server-sync/pkg/archive"
	"github.com/joe/server-sync/pkg/digest"
	"github.com/joe/server-sync/pkg/filesystem"
)

// TableEntry records what the remote holds for one file.
type TableEntry struct {
	Digest  digest.Digest
	Size    int64
	Archive string // archive name under FilesDir
}

// DigestTable maps forward-slash relative paths to their remote entries.
// It is rebuilt from the remote every cycle and never persisted locally.
type DigestTable map[string]TableEntry

// Members returns the sorted paths stored in archiveName.
func (t DigestTable) Members(archiveName string) []string {
	members := make([]string, 0)

	for rel, entry := range t {
		if entry.Archive == archiveName {
			members = append(members, rel)
		}
	}

	sort.Strings(members)

	return members
}

// Clone returns an independent copy.
func (t DigestTable) Clone() DigestTable {
	clone := make(DigestTable, len(t))
	for rel, entry := range t {
		clone[rel] = entry
	}

	return clone
}

// DropArchive removes every entry stored in archiveName.
func (t DigestTable) DropArchive(archiveName string) {
	for rel, entry := range t {
		if entry.Archive == archiveName {
			delete(t, rel)
		}
	}
}

// EncodeDigestTable packs the table as one archive entry per file whose
// content is "<hex digest> <size> <archive>".
func EncodeDigestTable(packager *archive.Packager, table DigestTable) ([]byte, error) {
	entries := make([]archive.Entry, 0, len(table))

	for rel, entry := range table {
		line := fmt.Sprintf("%s %d %s", entry.Digest.String(), entry.Size, entry.Archive)
		entries = append(entries, archive.Entry{RelativePath: rel, Content: []byte(line)})
	}

	return packager.Pack(entries) //nolint:wrapcheck // archive errors are descriptive
}

// DecodeDigestTable reverses EncodeDigestTable.
func DecodeDigestTable(data []byte) (DigestTable, error) {
	contents, err := archive.ReadEntries(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read digest table: %w", err)
	}

	table := make(DigestTable, len(contents))

	for rel, content := range contents {
		fields := strings.SplitN(strings.TrimSpace(string(content)), " ", 3) //nolint:mnd // digest, size, archive
		if len(fields) != 3 {                                                //nolint:mnd // digest, size, archive
			return nil, fmt.Errorf("%w: digest table entry %s: %q", archive.ErrMalformedArchive, rel, content)
		}

		sum, err := digest.Parse(fields[0])
		if err != nil {
			return nil, fmt.Errorf("digest table entry %s: %w", rel, err)
		}

		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: digest table entry %s: bad size: %w", archive.ErrMalformedArchive, rel, err)
		}

		table[rel] = TableEntry{Digest: sum, Size: size, Archive: fields[2]}
	}

	return table, nil
}

// fetchDigestTable downloads the remote table. A missing table is empty;
// an unreadable one is logged and treated as empty, which makes every
// archive look changed.
func (e *Engine) fetchDigestTable() (DigestTable, error) {
	staged := e.internalPath(StagingDir, DigestTableName)
	defer func() { _ = os.Remove(staged) }()

	_, err := e.remote.DownloadFile(DigestTableName, staged).Result()
	if errors.Is(err, filesystem.ErrNotExist) {
		return DigestTable{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to download digest table: %w", err)
	}

	data, err := os.ReadFile(staged)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged digest table: %w", err)
	}

	table, err := DecodeDigestTable(data)
	if err != nil {
		e.logger.Warn("ignoring unreadable digest table", "err", err)

		return DigestTable{}, nil
	}

	return table, nil
}

// publishDigestTable uploads table as the remote digest table.
func (e *Engine) publishDigestTable(table DigestTable) error {
	data, err := EncodeDigestTable(e.packager, table)
	if err != nil {
		return fmt.Errorf("failed to encode digest table: %w", err)
	}

	staged := e.internalPath(StagingDir, DigestTableName)

	err = os.MkdirAll(e.internalPath(StagingDir), 0o755) //nolint:mnd // standard directory permission
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	err = os.WriteFile(staged, data, 0o644) //nolint:gosec,mnd // staged archive, not secret
	if err != nil {
		return fmt.Errorf("failed to stage digest table: %w", err)
	}

	defer func() { _ = os.Remove(staged) }()

	_, err = e.remote.UploadFile(staged, DigestTableName).Result()
	if err != nil {
		return fmt.Errorf("failed to upload digest table: %w", err)
	}

	return nil
}
