package tui

import (
	"fmt"
	"strings"

	"github.com/joe/server-sync/internal/lifecycle"
	"github.com/joe/server-sync/internal/tui/shared"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting && m.state == lifecycle.Offline {
		return ""
	}

	sections := []string{
		m.renderHeader(),
		m.renderStatus(),
	}

	if body := m.renderBody(); body != "" {
		sections = append(sections, body)
	}

	if m.lastErr != nil {
		sections = append(sections, shared.RenderActionableError(m.lastErr, m.width))
	}

	if len(m.saveErrs) > 0 {
		sections = append(sections, shared.RenderErrorList(m.saveErrs, m.width))
	}

	sections = append(sections,
		shared.RenderActivityLog("Activity", m.activity.Entries(), activityLines),
		m.help.View(m.keys),
	)

	return strings.Join(sections, "\n\n")
}

func (m Model) renderHeader() string {
	return shared.RenderTitle(m.title) + "  " + shared.RenderTimeline(m.state, m.reached, m.failed)
}

func (m Model) renderStatus() string {
	local := shared.RenderLabel("Local: ") + stateLabel(m.state)
	if m.state == lifecycle.RetrievingFiles || m.state == lifecycle.SavingFiles || m.pending != "" {
		local += " " + m.spinner.View()
	}

	remote := shared.RenderLabel("Remote: ")

	switch {
	case m.infoErr != nil:
		remote += shared.RenderWarning("unavailable")
	case m.infoAt.IsZero():
		remote += shared.RenderDim("checking...")
	default:
		remote += remoteLabel(m.info)
	}

	line := local + "    " + remote

	if m.serverStats != nil {
		line += "\n" + shared.RenderDim(m.serverStats.String())
	}

	return line
}

func (m Model) renderBody() string {
	var parts []string

	if m.transferring {
		parts = append(parts, shared.RenderTransfer(m.bar, m.transfer, m.transferStats))
	}

	switch m.state {
	case lifecycle.Running:
		parts = append(parts,
			shared.RenderWidgetBox("Console", m.viewport.View(), m.width),
			m.input.View())
	case lifecycle.Offline:
		if overrides := m.renderOverrides(); overrides != "" {
			parts = append(parts, overrides)
		}
	case lifecycle.RetrievingFiles, lifecycle.SavingFiles:
	}

	return strings.Join(parts, "\n")
}

func (m Model) renderOverrides() string {
	if len(m.overrides) == 0 {
		return ""
	}

	lines := []string{shared.RenderLabel("Overrides")}

	for i, override := range m.overrides {
		if i == m.cursor {
			lines = append(lines, shared.SelectedStyle().Render(shared.PromptArrow+override.Label))
		} else {
			lines = append(lines, "  "+override.Label)
		}
	}

	return strings.Join(lines, "\n")
}

func stateLabel(state lifecycle.State) string {
	switch state {
	case lifecycle.Offline:
		return "offline"
	case lifecycle.RetrievingFiles:
		return "retrieving files"
	case lifecycle.Running:
		return "running"
	case lifecycle.SavingFiles:
		return "saving files"
	}

	return strings.ToLower(state.String())
}

func remoteLabel(info lifecycle.RemoteInfo) string {
	switch info.Status {
	case lifecycle.StatusOffline:
		return shared.RenderDim("nobody is hosting")
	case lifecycle.StatusRemoteOnline:
		return shared.RenderSuccess("online") + " at " + info.Host
	case lifecycle.StatusRemoteUploading:
		return shared.RenderWarning("another participant is uploading")
	case lifecycle.StatusLocallyOnline:
		return shared.RenderSuccess("hosted here") + fmt.Sprintf(" (%s)", info.Host)
	case lifecycle.StatusLocallyDownloading:
		return "downloading here"
	case lifecycle.StatusLocallyUploading:
		return "uploading here"
	}

	return info.Status.String()
}

// unexported constants.
const activityLines = 6
