package shared

import (
	"github.com/joe/server-sync/internal/gameserver"
	"github.com/joe/server-sync/internal/lifecycle"
)

// StateChangedMsg carries a lifecycle state transition.
type StateChangedMsg struct {
	State lifecycle.State
}

// ConsoleLineMsg carries one line of server console output or echoed input.
type ConsoleLineMsg struct {
	Line gameserver.Line
}

// RemoteInfoMsg is the result of a remote status poll.
type RemoteInfoMsg struct {
	Info lifecycle.RemoteInfo
	Err  error
}

// ActionDoneMsg reports that a start request or an override finished.
type ActionDoneMsg struct {
	Action string
	Err    error
}

// SubscriptionClosedMsg is sent when a state or console feed ends.
type SubscriptionClosedMsg struct{}

// ServerStatsMsg carries a resource reading of the running server process.
type ServerStatsMsg struct {
	Stats *gameserver.Stats
	Err   error
}
