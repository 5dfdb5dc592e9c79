package syncengine

import "time"

// Event is the interface implemented by all sync engine events.
type Event interface {
	isEvent()
}

// EventEmitter is the interface for emitting events.
type EventEmitter interface {
	Emit(event Event)
}

// Admission events

// BusyWaiting is emitted each time a retrieval finds another participant mid-upload.
type BusyWaiting struct {
	Since time.Time
}

func (BusyWaiting) isEvent() {}

// BusyFlagChanged is emitted after the busy flag is written.
type BusyFlagChanged struct {
	Busy bool
}

func (BusyFlagChanged) isEvent() {}

// Local tree events

// BackupCreated is emitted once the pre-retrieval backup is on disk.
type BackupCreated struct {
	Path  string
	Files int
}

func (BackupCreated) isEvent() {}

// LocalFilesDeleted is emitted after stale local files are removed.
type LocalFilesDeleted struct {
	Count int
}

func (LocalFilesDeleted) isEvent() {}

// Transfer events

// TransferStarted is emitted when an archive transfer is queued.
type TransferStarted struct {
	Direction string // "upload" or "download"
	Name      string
	Size      int64
}

func (TransferStarted) isEvent() {}

// TransferComplete is emitted when an archive transfer finishes successfully.
type TransferComplete struct {
	Direction string
	Name      string
}

func (TransferComplete) isEvent() {}

// TransferSkipped is emitted for an archive whose digests already match.
type TransferSkipped struct {
	Name string
}

func (TransferSkipped) isEvent() {}

// Completion events

// RetrieveComplete is emitted when RetrieveFiles finishes without error.
type RetrieveComplete struct {
	Result *RetrieveResult
}

func (RetrieveComplete) isEvent() {}

// RetrieveResult summarises a retrieval.
type RetrieveResult struct {
	BackupPath   string
	Downloaded   []string // archive names under files/
	Skipped      []string
	FilesDeleted int
	FilesWritten int
}

// SaveComplete is emitted when SaveFiles finishes, with or without errors.
type SaveComplete struct {
	Result *SaveResult
}

func (SaveComplete) isEvent() {}

// SaveResult summarises a save.
type SaveResult struct {
	Uploaded      []string
	Skipped       []string
	RemoteDeleted []string
	BytesUploaded int64
	Errors        []error
}

// Error events

// ErrorOccurred is emitted when an error occurs during any phase.
type ErrorOccurred struct {
	Phase string
	Err   error
}

func (ErrorOccurred) isEvent() {}
