// Package syncengine moves the server directory to and from the shared
// remote: it guards retrieval behind the busy flag, backs up before any
// destructive step, diffs by content digest and packs files into archives.
package syncengine

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/joe/server-sync/internal/remote"
	"github.com/joe/server-sync/pkg/archive"
	"github.com/joe/server-sync/pkg/digest"
	"github.com/joe/server-sync/pkg/filesystem"
)

// Exported constants.
const (
	// BusyFlagName holds "true" while a participant is uploading.
	BusyFlagName = "uploadInProgress"
	// HostRecordName holds the address of the participant hosting the server.
	HostRecordName = "runningServer"
	// DigestTableName is the archive of per-file digests.
	DigestTableName = "digests.zip"
	// FilesDir holds the content archives.
	FilesDir = "files"
	// SmallFilesArchive bundles every file below the small-file threshold.
	SmallFilesArchive = "smallFilesSync.zip"
	// ArchiveSuffix is appended to a large file's path to name its archive.
	ArchiveSuffix = ".zip"

	// InternalDir holds local bookkeeping under the server directory.
	InternalDir = ".serversync"
	// BackupsDir, StagingDir and LogsDir live under InternalDir.
	BackupsDir = "backups"
	StagingDir = "staging"
	LogsDir    = "logs"

	// DefaultSmallFileThreshold is the size below which files are bundled (20 KiB).
	DefaultSmallFileThreshold = 20 * 1024
	// DefaultBusyPollInterval is how often a blocked retrieval re-checks the busy flag.
	DefaultBusyPollInterval = 10 * time.Second
	// DefaultKeepBackups is how many backup archives are retained.
	DefaultKeepBackups = 5

	busyTrue  = "true"
	busyFalse = "false"
)

// Exported variables.
var (
	ErrSaveIncomplete = errors.New("save incomplete")
	// ErrUnrelatedServerDir refuses a save from a tree that has nothing in
	// common with the remote, which would otherwise replace it wholesale.
	ErrUnrelatedServerDir = errors.New("server directory shares no files with the remote")
)

// Remote is the subset of the remote store the engine drives.
// *remote.Store satisfies it.
type Remote interface {
	GetContent(name string) *remote.Task[string]
	SetContent(name, text string) *remote.Task[struct{}]
	Delete(name string) *remote.Task[struct{}]
	UploadFile(localPath, remotePath string) *remote.Task[struct{}]
	DownloadFile(remotePath, localPath string) *remote.Task[struct{}]
	ListFilesRecursively(dir string) *remote.Task[mapset.Set[string]]
}

// Engine synchronises one server directory with the remote.
type Engine struct {
	Root               string
	SmallFileThreshold int64
	BusyPollInterval   time.Duration
	KeepBackups        int
	TimeProvider       TimeProvider // Time provider (for dependency injection)
	FileSystem         filesystem.FileSystem

	remote   Remote
	packager *archive.Packager
	hasher   *digest.Hasher
	logger   *slog.Logger
	emitter  EventEmitter // Event emitter for UI communication (optional)
}

// NewEngine creates an engine for the server directory root.
// A nil logger falls back to slog.Default().
func NewEngine(root string, store Remote, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		Root:               root,
		SmallFileThreshold: DefaultSmallFileThreshold,
		BusyPollInterval:   DefaultBusyPollInterval,
		KeepBackups:        DefaultKeepBackups,
		TimeProvider:       &RealTimeProvider{},
		FileSystem:         filesystem.NewRealFileSystem(NewIgnoreFilter(DefaultIgnorePatterns...)),
		remote:             store,
		packager:           archive.NewPackager(logger),
		hasher:             digest.NewHasher(logger),
		logger:             logger,
	}
}

// SetEventEmitter sets the event emitter for UI communication.
// The emitter is optional - if nil, no events will be emitted.
func (e *Engine) SetEventEmitter(emitter EventEmitter) {
	e.emitter = emitter
}

// HostRecord returns the published host address, or "" when nobody hosts.
func (e *Engine) HostRecord() (string, error) {
	host, err := e.remote.GetContent(HostRecordName).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read host record: %w", err)
	}

	return host, nil
}

// PublishHost claims the server for address.
func (e *Engine) PublishHost(address string) error {
	_, err := e.remote.SetContent(HostRecordName, address).Result()
	if err != nil {
		return fmt.Errorf("failed to publish host record: %w", err)
	}

	return nil
}

// ClearHost releases the server.
func (e *Engine) ClearHost() error {
	_, err := e.remote.Delete(HostRecordName).Result()
	if err != nil {
		return fmt.Errorf("failed to clear host record: %w", err)
	}

	return nil
}

// IsBusy reports whether some participant is mid-upload.
func (e *Engine) IsBusy() (bool, error) {
	flag, err := e.remote.GetContent(BusyFlagName).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read busy flag: %w", err)
	}

	return strings.EqualFold(flag, busyTrue), nil
}

// ClearBusyFlag sets the busy flag to false.
func (e *Engine) ClearBusyFlag() error {
	return e.setBusy(false)
}

func (e *Engine) setBusy(busy bool) error {
	value := busyFalse
	if busy {
		value = busyTrue
	}

	_, err := e.remote.SetContent(BusyFlagName, value).Result()
	if err != nil {
		return fmt.Errorf("failed to set busy flag to %s: %w", value, err)
	}

	e.emit(BusyFlagChanged{Busy: busy})

	return nil
}

// emit sends an event if an emitter is configured.
// Safe to call even when emitter is nil.
func (e *Engine) emit(event Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

func (e *Engine) internalPath(elem ...string) string {
	return filepath.Join(append([]string{e.Root, InternalDir}, elem...)...)
}

func (e *Engine) localPath(relativePath string) string {
	return filepath.Join(e.Root, filepath.FromSlash(relativePath))
}

// remoteArchivePath names an archive under FilesDir.
func remoteArchivePath(archiveName string) string {
	return filesystem.RemotePath(FilesDir, archiveName)
}

// largeArchiveName names the archive holding one large file.
func largeArchiveName(relativePath string) string {
	return archive.ToSlash(relativePath) + ArchiveSuffix
}

// bundled reports whether a file travels in the small-file bundle. A file
// whose own archive name would be the bundle's always goes in the bundle.
func (e *Engine) bundled(record FileRecord) bool {
	return record.Size < e.SmallFileThreshold || largeArchiveName(record.RelativePath) == SmallFilesArchive
}
