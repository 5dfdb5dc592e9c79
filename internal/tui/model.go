package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/joe/server-sync/internal/gameserver"
	"github.com/joe/server-sync/internal/lifecycle"
	xfer "github.com/joe/server-sync/internal/progress"
	"github.com/joe/server-sync/internal/tui/shared"
)

// DefaultRefreshInterval is how often the remote status is polled while the
// local server is offline.
const DefaultRefreshInterval = 5 * time.Second

// Controller is the part of the lifecycle the UI drives.
type Controller interface {
	Status() lifecycle.State
	Subscribe() (<-chan lifecycle.State, func())
	Start(ctx context.Context) error
	RequestStop()
	Wait() error
	RemoteInfo(ctx context.Context) (lifecycle.RemoteInfo, error)
	Apply(ctx context.Context, kind lifecycle.OverrideKind) error
}

// ServerConsole is the live console of the server process.
type ServerConsole interface {
	Subscribe() ([]gameserver.Line, <-chan gameserver.Line, func())
	Send(command string) error
}

// StatsSource reads the resource usage of the running server.
type StatsSource interface {
	Stats() (*gameserver.Stats, error)
}

// TransferSource reports the archive transfer in flight, if any.
type TransferSource interface {
	Active() (xfer.Snapshot, xfer.Stats, bool)
}

// Options configures a Model. Controller and Console are required.
type Options struct {
	Context         context.Context //nolint:containedctx // the program owns one context for its lifetime
	Controller      Controller
	Console         ServerConsole
	Transfers       TransferSource      // optional
	ServerStats     StatsSource         // optional
	Events          *shared.EventBridge // optional
	Title           string
	AltScreen       bool
	RefreshInterval time.Duration
	Now             func() time.Time
}

// Model is the single-screen bubbletea model: remote status and overrides
// while offline, the server console while running, transfer progress while
// files move.
type Model struct {
	ctx       context.Context //nolint:containedctx // see Options.Context
	ctrl      Controller
	console   ServerConsole
	transfers TransferSource
	stats     StatsSource
	events    *shared.EventBridge
	title     string
	now       func() time.Time

	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	bar      progress.Model
	viewport viewport.Model
	input    textinput.Model

	state   lifecycle.State
	reached lifecycle.State
	failed  bool

	info            lifecycle.RemoteInfo
	infoErr         error
	infoAt          time.Time
	refreshing      bool
	refreshInterval time.Duration

	overrides []lifecycle.Override
	cursor    int
	pending   string

	consoleLines []string
	activity     *shared.ActivityLog
	lastErr      error
	saveErrs     []error

	transfer      xfer.Snapshot
	transferStats xfer.Stats
	transferring  bool

	serverStats   *gameserver.Stats
	serverStatsAt time.Time
	pollingStats  bool

	stateCh     <-chan lifecycle.State
	lineCh      <-chan gameserver.Line
	unsubscribe []func()

	quitting bool
	width    int
	height   int
}

// NewModel subscribes to the controller and console and returns the model.
// Call Close once the program has exited.
func NewModel(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	refresh := opts.RefreshInterval
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}

	title := opts.Title
	if title == "" {
		title = "server-sync"
	}

	input := textinput.New()
	input.Prompt = shared.PromptArrow
	input.Placeholder = "server command"
	input.CharLimit = 256

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := Model{
		ctx:             ctx,
		ctrl:            opts.Controller,
		console:         opts.Console,
		transfers:       opts.Transfers,
		stats:           opts.ServerStats,
		events:          opts.Events,
		title:           title,
		now:             now,
		keys:            defaultKeys(),
		help:            help.New(),
		spinner:         spin,
		bar:             shared.NewProgressModel(shared.ProgressBarWidth),
		viewport:        viewport.New(shared.MaxProgressBarWidth, consoleMinHeight),
		input:           input,
		state:           opts.Controller.Status(),
		reached:         lifecycle.Offline,
		refreshInterval: refresh,
		activity:        shared.NewActivityLog(shared.DefaultActivityLimit, now),
	}

	stateCh, unsubState := opts.Controller.Subscribe()
	history, lineCh, unsubConsole := opts.Console.Subscribe()

	m.stateCh = stateCh
	m.lineCh = lineCh
	m.unsubscribe = []func(){unsubState, unsubConsole}

	for _, line := range history {
		m.consoleLines = append(m.consoleLines, renderConsoleLine(line))
	}

	m.viewport.SetContent(strings.Join(m.consoleLines, "\n"))
	m.viewport.GotoBottom()

	return m
}

// Close releases the model's subscriptions.
func (m Model) Close() {
	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
}

// State returns the lifecycle state the model last observed.
func (m Model) State() lifecycle.State {
	return m.state
}

// Overrides returns the overrides currently offered to the operator.
func (m Model) Overrides() []lifecycle.Override {
	return m.overrides
}

// Activity returns the activity log entries, oldest first.
func (m Model) Activity() []string {
	return m.activity.Entries()
}

// ConsoleLines returns the console lines shown in the console pane.
func (m Model) ConsoleLines() []string {
	return m.consoleLines
}

// Quitting reports whether the operator asked to leave.
func (m Model) Quitting() bool {
	return m.quitting
}

// LastError returns the most recent error shown to the operator.
func (m Model) LastError() error {
	return m.lastErr
}

func renderConsoleLine(line gameserver.Line) string {
	if line.Input {
		return shared.ConsoleInputStyle().Render(line.Text)
	}

	return line.Text
}

// unexported constants.
const (
	statsInterval    = time.Second
	consoleMinHeight = 5
	chromeHeight     = 16
	consoleHistory   = gameserver.DefaultHistorySize
)
