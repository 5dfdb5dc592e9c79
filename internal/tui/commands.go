package tui

import (
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joe/server-sync/internal/lifecycle"
	"github.com/joe/server-sync/internal/syncengine"
	"github.com/joe/server-sync/internal/tui/shared"
)

// unexported constants.
const (
	actionStart   = "Start server"
	actionSession = "Server session"
)

func (m Model) waitForState() tea.Cmd {
	ch := m.stateCh

	return func() tea.Msg {
		state, ok := <-ch
		if !ok {
			return shared.SubscriptionClosedMsg{}
		}

		return shared.StateChangedMsg{State: state}
	}
}

func (m Model) waitForLine() tea.Cmd {
	ch := m.lineCh

	return func() tea.Msg {
		line, ok := <-ch
		if !ok {
			return shared.SubscriptionClosedMsg{}
		}

		return shared.ConsoleLineMsg{Line: line}
	}
}

func (m Model) readStats() tea.Cmd {
	source := m.stats

	return func() tea.Msg {
		stats, err := source.Stats()

		return shared.ServerStatsMsg{Stats: stats, Err: err}
	}
}

func (m Model) refreshInfo() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl

	return func() tea.Msg {
		info, err := ctrl.RemoteInfo(ctx)

		return shared.RemoteInfoMsg{Info: info, Err: err}
	}
}

// startServer starts a cycle and then waits it out, so the program learns
// how the session ended.
func (m Model) startServer() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl

	return func() tea.Msg {
		if err := ctrl.Start(ctx); err != nil {
			return shared.ActionDoneMsg{Action: actionStart, Err: err}
		}

		return shared.ActionDoneMsg{Action: actionSession, Err: ctrl.Wait()}
	}
}

func (m Model) applyOverride(override lifecycle.Override) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl

	return func() tea.Msg {
		return shared.ActionDoneMsg{Action: override.Label, Err: ctrl.Apply(ctx, override.Kind)}
	}
}

// describeEvent turns an engine event into an activity log line. Events too
// chatty for the log yield "".
func describeEvent(event syncengine.Event) string {
	switch event := event.(type) {
	case syncengine.BusyWaiting:
		return "Waiting for another participant to finish uploading"
	case syncengine.BusyFlagChanged:
		if event.Busy {
			return "Marked remote as uploading"
		}

		return "Cleared remote uploading flag"
	case syncengine.BackupCreated:
		return fmt.Sprintf("Backed up %d files to %s", event.Files, filepath.Base(event.Path))
	case syncengine.LocalFilesDeleted:
		return fmt.Sprintf("Removed %d stale local files", event.Count)
	case syncengine.TransferComplete:
		return fmt.Sprintf("%s %s done", event.Direction, event.Name)
	case syncengine.RetrieveComplete:
		if event.Result == nil {
			return "Retrieve complete"
		}

		return fmt.Sprintf("Retrieve complete: %d archives downloaded, %d unchanged",
			len(event.Result.Downloaded), len(event.Result.Skipped))
	case syncengine.SaveComplete:
		if event.Result == nil {
			return "Save complete"
		}

		return fmt.Sprintf("Save complete: %d archives uploaded (%s), %d unchanged",
			len(event.Result.Uploaded), shared.FormatBytes(event.Result.BytesUploaded), len(event.Result.Skipped))
	case syncengine.ErrorOccurred:
		return fmt.Sprintf("%s error: %v", event.Phase, event.Err)
	case syncengine.TransferStarted, syncengine.TransferSkipped:
		return ""
	}

	return ""
}
