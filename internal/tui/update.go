package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joe/server-sync/internal/lifecycle"
	xfer "github.com/joe/server-sync/internal/progress"
	"github.com/joe/server-sync/internal/syncengine"
	"github.com/joe/server-sync/internal/tui/shared"
)

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.waitForState(),
		m.waitForLine(),
		m.refreshInfo(),
		shared.TickCmd(),
		m.spinner.Tick,
	}

	if m.events != nil {
		cmds = append(cmds, m.events.ListenCmd())
	}

	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case shared.StateChangedMsg:
		return m.handleState(msg.State)

	case shared.ConsoleLineMsg:
		m.appendConsole(renderConsoleLine(msg.Line))

		return m, m.waitForLine()

	case shared.RemoteInfoMsg:
		m.refreshing = false
		m.infoAt = m.now()
		m.info, m.infoErr = msg.Info, msg.Err
		m.updateOverrides()

		return m, nil

	case shared.ActionDoneMsg:
		return m.handleActionDone(msg)

	case shared.EngineEventMsg:
		m.handleEngineEvent(msg.Event)

		return m, m.events.ListenCmd()

	case shared.TickMsg:
		m.transfer, m.transferStats, m.transferring = m.pollTransfer()

		var cmd tea.Cmd
		if m.state == lifecycle.Offline && m.pending == "" && !m.refreshing &&
			m.now().Sub(m.infoAt) >= m.refreshInterval {
			cmd = m.refreshInfo()
			m.refreshing = true
		}

		if m.state == lifecycle.Running && m.stats != nil && !m.pollingStats &&
			m.now().Sub(m.serverStatsAt) >= statsInterval {
			m.pollingStats = true
			cmd = tea.Batch(cmd, m.readStats())
		}

		return m, tea.Batch(cmd, shared.TickCmd())

	case shared.ServerStatsMsg:
		m.pollingStats = false
		m.serverStatsAt = m.now()
		m.serverStats = msg.Stats

		if msg.Err != nil {
			m.serverStats = nil
		}

		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd

	case shared.SubscriptionClosedMsg:
		return m, nil
	}

	if m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.help.Width = width

	m.viewport.Width = max(width-4, 1) //nolint:mnd // box border and padding
	m.viewport.Height = max(height-chromeHeight, consoleMinHeight)

	m.bar.Width = min(max(width-20, 10), shared.MaxProgressBarWidth) //nolint:mnd // room for the percentage label
	m.input.Width = max(width-6, 10)                                 //nolint:mnd // prompt and border
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && (msg.String() == shared.KeyCtrlC || !m.input.Focused()) {
		return m.quit()
	}

	switch m.state {
	case lifecycle.Running:
		return m.handleRunningKey(msg)
	case lifecycle.Offline:
		return m.handleOfflineKey(msg)
	case lifecycle.RetrievingFiles, lifecycle.SavingFiles:
		return m, nil
	}

	return m, nil
}

func (m Model) handleRunningKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Stop):
		m.activity.Add("Stopping server")
		m.ctrl.RequestStop()

		return m, nil

	case key.Matches(msg, m.keys.Send):
		command := strings.TrimSpace(m.input.Value())
		m.input.Reset()

		if command == "" {
			return m, nil
		}

		if err := m.console.Send(command); err != nil {
			m.lastErr = err
		}

		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func (m Model) handleOfflineKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pending != "" {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Start):
		m.pending = actionStart
		m.lastErr = nil

		return m, m.startServer()

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.overrides)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Apply):
		if len(m.overrides) == 0 {
			return m, nil
		}

		override := m.overrides[m.cursor]
		m.pending = override.Label
		m.lastErr = nil
		m.activity.Add(override.Label)

		return m, m.applyOverride(override)

	case key.Matches(msg, m.keys.Refresh):
		if !m.refreshing {
			m.refreshing = true

			return m, m.refreshInfo()
		}
	}

	return m, nil
}

// quit leaves at once when nothing is running. Otherwise it asks the cycle
// to stop and leaves when the lifecycle is back offline; a second request
// leaves immediately and the caller finishes the save.
func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.quitting || (m.state == lifecycle.Offline && m.pending == "") {
		m.quitting = true

		return m, tea.Quit
	}

	m.quitting = true
	m.activity.Add("Stopping server before exit")
	m.ctrl.RequestStop()

	return m, nil
}

func (m Model) handleState(state lifecycle.State) (tea.Model, tea.Cmd) {
	if state == m.state {
		return m, m.waitForState()
	}

	if m.state == lifecycle.Offline {
		m.failed = false
		m.saveErrs = nil
	}

	m.state = state
	m.activity.Add("Server " + stateLabel(state))

	if state != lifecycle.Offline {
		m.reached = state
		m.overrides = nil
	}

	if state == lifecycle.Running {
		m.input.Focus()
	} else {
		m.input.Blur()
		m.serverStats = nil
	}

	if state != lifecycle.Offline {
		return m, m.waitForState()
	}

	if m.quitting {
		return m, tea.Quit
	}

	m.refreshing = true

	return m, tea.Batch(m.waitForState(), m.refreshInfo())
}

func (m Model) handleActionDone(msg shared.ActionDoneMsg) (tea.Model, tea.Cmd) {
	if msg.Action != actionStart {
		m.pending = ""
	}

	if m.quitting && m.state == lifecycle.Offline {
		return m, tea.Quit
	}

	if msg.Err != nil {
		m.pending = ""
		m.lastErr = msg.Err
		m.failed = msg.Action != actionStart
		m.activity.Add(fmt.Sprintf("%s failed: %v", msg.Action, msg.Err))

		if errors.Is(msg.Err, lifecycle.ErrRemoteHosted) {
			m.refreshing = true

			return m, m.refreshInfo()
		}

		return m, nil
	}

	if msg.Action == actionSession {
		m.activity.Add("Server session finished")
	}

	return m, nil
}

func (m *Model) handleEngineEvent(event syncengine.Event) {
	switch event := event.(type) {
	case syncengine.SaveComplete:
		if event.Result != nil {
			m.saveErrs = event.Result.Errors
		}
	case syncengine.ErrorOccurred:
		m.lastErr = event.Err
	}

	if line := describeEvent(event); line != "" {
		m.activity.Add(line)
	}
}

func (m *Model) appendConsole(line string) {
	m.consoleLines = append(m.consoleLines, line)
	if len(m.consoleLines) > consoleHistory {
		m.consoleLines = m.consoleLines[len(m.consoleLines)-consoleHistory:]
	}

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.consoleLines, "\n"))

	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) updateOverrides() {
	if m.state != lifecycle.Offline || m.infoErr != nil {
		m.overrides = nil
	} else {
		m.overrides = lifecycle.ActiveOverrides(m.info)
	}

	m.cursor = min(m.cursor, max(len(m.overrides)-1, 0))
}

func (m Model) pollTransfer() (snap xfer.Snapshot, stats xfer.Stats, ok bool) {
	if m.transfers == nil {
		return snap, stats, false
	}

	return m.transfers.Active()
}
