package shared

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg drives periodic polling: transfer progress every tick, remote
// status whenever the refresh interval has passed.
type TickMsg time.Time

// TickCmd schedules the next TickMsg.
func TickCmd() tea.Cmd {
	return tea.Tick(TickInterval, func(at time.Time) tea.Msg { return TickMsg(at) })
}
