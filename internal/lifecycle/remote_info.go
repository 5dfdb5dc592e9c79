package lifecycle

import (
	"context"
	"fmt"
)

// RemoteInfo reports where the shared server runs. Local activity wins;
// otherwise the host record is consulted, then the busy flag.
func (l *Lifecycle) RemoteInfo(ctx context.Context) (RemoteInfo, error) {
	l.mu.Lock()
	state, host := l.state, l.host
	l.mu.Unlock()

	if state != Offline {
		if host == "" {
			host = "localhost"
		}

		return RemoteInfo{Status: localStatus(state), Host: host}, nil
	}

	if err := ctx.Err(); err != nil {
		return RemoteInfo{}, fmt.Errorf("remote info: %w", err)
	}

	remoteHost, err := l.engine.HostRecord()
	if err != nil {
		return RemoteInfo{}, err //nolint:wrapcheck // engine errors carry context
	}

	if remoteHost != "" {
		return RemoteInfo{Status: StatusRemoteOnline, Host: remoteHost}, nil
	}

	busy, err := l.engine.IsBusy()
	if err != nil {
		return RemoteInfo{}, err //nolint:wrapcheck // engine errors carry context
	}

	if busy {
		return RemoteInfo{Status: StatusRemoteUploading}, nil
	}

	return RemoteInfo{Status: StatusOffline}, nil
}
