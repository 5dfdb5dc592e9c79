package syncengine

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/joe/server-sync/pkg/archive"
	"github.com/joe/server-sync/pkg/digest"
	"golang.org/x/sync/errgroup"
)

// FileRecord describes one local file during a sync pass.
type FileRecord struct {
	RelativePath string // forward slashes
	Digest       digest.Digest
	Size         int64
}

// scanLocal lists the managed files under Root, sorted by path.
func (e *Engine) scanLocal() ([]FileRecord, error) {
	err := e.FileSystem.MkdirAll(e.Root, 0o755) //nolint:mnd // standard directory permission
	if err != nil {
		return nil, fmt.Errorf("failed to prepare server directory: %w", err)
	}

	scanner := e.FileSystem.Scan(e.Root)
	records := make([]FileRecord, 0)

	for {
		info, ok := scanner.Next()
		if !ok {
			break
		}

		if info.IsDir {
			continue
		}

		records = append(records, FileRecord{
			RelativePath: archive.ToSlash(info.RelativePath),
			Size:         info.Size,
		})
	}

	if err := scanner.Err(); err != nil { //nolint:noinlineerr // scanner idiom
		return nil, fmt.Errorf("failed to scan %s: %w", e.Root, err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].RelativePath < records[j].RelativePath })

	return records, nil
}

// hashAll fills in each record's digest, hashing files in parallel.
func (e *Engine) hashAll(ctx context.Context, records []FileRecord) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())

	for i := range records {
		group.Go(func() error {
			if err := ctx.Err(); err != nil { //nolint:noinlineerr // cancellation check
				return err //nolint:wrapcheck // context error
			}

			records[i].Digest = e.hasher.File(e.localPath(records[i].RelativePath))

			return nil
		})
	}

	return group.Wait() //nolint:wrapcheck // context error
}

// localDigests hashes the given relative paths; missing files get the sentinel.
func (e *Engine) localDigests(ctx context.Context, paths []string) (map[string]digest.Digest, error) {
	records := make([]FileRecord, len(paths))
	for i, rel := range paths {
		records[i] = FileRecord{RelativePath: rel}
	}

	err := e.hashAll(ctx, records)
	if err != nil {
		return nil, err
	}

	digests := make(map[string]digest.Digest, len(records))
	for _, record := range records {
		digests[record.RelativePath] = record.Digest
	}

	return digests, nil
}
