package lifecycle

// State is the local server's position in a hosting cycle.
type State int

// States, in cycle order.
const (
	Offline State = iota
	RetrievingFiles
	Running
	SavingFiles
)

func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case RetrievingFiles:
		return "RETRIEVING_FILES"
	case Running:
		return "RUNNING"
	case SavingFiles:
		return "SAVING_FILES"
	default:
		return "UNKNOWN"
	}
}

// RemoteStatus is what a participant should believe about the shared server.
type RemoteStatus int

// Remote statuses. Local states take precedence over what the remote says.
const (
	StatusOffline RemoteStatus = iota
	StatusRemoteOnline
	StatusRemoteUploading
	StatusLocallyOnline
	StatusLocallyDownloading
	StatusLocallyUploading
)

func (s RemoteStatus) String() string {
	switch s {
	case StatusOffline:
		return "OFFLINE"
	case StatusRemoteOnline:
		return "REMOTE_ONLINE"
	case StatusRemoteUploading:
		return "REMOTE_UPLOADING"
	case StatusLocallyOnline:
		return "LOCALLY_ONLINE"
	case StatusLocallyDownloading:
		return "LOCALLY_DOWNLOADING"
	case StatusLocallyUploading:
		return "LOCALLY_UPLOADING"
	default:
		return "UNKNOWN"
	}
}

// RemoteInfo describes where the shared server currently runs.
type RemoteInfo struct {
	Status RemoteStatus
	Host   string // address to connect to; empty unless someone is online
}

func localStatus(state State) RemoteStatus {
	switch state {
	case Running:
		return StatusLocallyOnline
	case RetrievingFiles:
		return StatusLocallyDownloading
	case SavingFiles:
		return StatusLocallyUploading
	default:
		return StatusOffline
	}
}
