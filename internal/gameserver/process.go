// Package gameserver runs the game server as a child process: it builds the
// java command line, bridges stdin/stdout to a Console, stops the server with
// its own console command and watches for the process dying on its own.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Exported constants.
const (
	DefaultJava             = "java"
	DefaultJar              = "server.jar"
	DefaultMinMemory        = "512M"
	DefaultMaxMemory        = "1408M"
	DefaultStopCommand      = "stop"
	DefaultStopPollInterval = time.Second
)

// Config describes how to launch the server.
type Config struct {
	Dir       string   // working directory, the synced server directory
	Java      string   // java executable
	Jar       string   // server jar, relative to Dir
	MinMemory string   // -Xms value
	MaxMemory string   // -Xmx value
	JVMArgs   []string // extra JVM flags placed before -jar

	// Command replaces the computed java command line entirely when set.
	Command []string

	StopCommand      string
	StopPollInterval time.Duration
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Java == "" {
		c.Java = DefaultJava
	}

	if c.Jar == "" {
		c.Jar = DefaultJar
	}

	if c.MinMemory == "" {
		c.MinMemory = DefaultMinMemory
	}

	if c.MaxMemory == "" {
		c.MaxMemory = DefaultMaxMemory
	}

	if c.StopCommand == "" {
		c.StopCommand = DefaultStopCommand
	}

	if c.StopPollInterval <= 0 {
		c.StopPollInterval = DefaultStopPollInterval
	}

	return c
}

// Argv returns the full command line.
func (c Config) Argv() []string {
	if len(c.Command) > 0 {
		return append([]string(nil), c.Command...)
	}

	c = c.withDefaults()

	argv := []string{c.Java, "-Xms" + c.MinMemory, "-Xmx" + c.MaxMemory}
	argv = append(argv, c.JVMArgs...)

	return append(argv, "-jar", c.Jar, "nogui")
}

// Instance is a started server as its supervisor sees it.
type Instance interface {
	// Stop asks the server to shut down and blocks until it has exited.
	Stop() error
	// Exited is closed once the process has terminated for any reason.
	Exited() <-chan struct{}
}

// Launcher starts server processes that share one console.
type Launcher struct {
	cfg     Config
	console *Console
	logger  *slog.Logger

	mu      sync.Mutex
	current *Process
}

// NewLauncher creates a launcher. A nil logger falls back to slog.Default().
func NewLauncher(cfg Config, console *Console, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}

	if console == nil {
		console = NewConsole(DefaultHistorySize, nil)
	}

	return &Launcher{cfg: cfg.withDefaults(), console: console, logger: logger}
}

// Console returns the shared console.
func (l *Launcher) Console() *Console {
	return l.console
}

// Launch starts one server process.
func (l *Launcher) Launch(ctx context.Context) (Instance, error) {
	proc, err := Start(ctx, l.cfg, l.console, l.logger)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = proc
	l.mu.Unlock()

	return proc, nil
}

// Stats reads the resource usage of the most recently launched process,
// or fails with ErrNotRunning.
func (l *Launcher) Stats() (*Stats, error) {
	l.mu.Lock()
	proc := l.current
	l.mu.Unlock()

	if proc == nil {
		return nil, ErrNotRunning
	}

	return proc.Stats()
}

// Process is one running server.
type Process struct {
	cfg     Config
	cmd     *exec.Cmd
	console *Console
	logger  *slog.Logger

	exited chan struct{}

	mu            sync.Mutex
	stopRequested bool
	unexpected    bool
	exitErr       error
}

// Start launches the server described by cfg. The context only bounds the
// launch itself; the process is never killed because ctx ends, since killing
// a game server mid-write risks corrupting the world.
func Start(ctx context.Context, cfg Config, console *Console, logger *slog.Logger) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("not starting server: %w", err)
	}

	cfg = cfg.withDefaults()
	argv := cfg.Argv()

	//nolint:gosec // the command line comes from the operator's own configuration
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cfg.Dir

	stdout := &lineWriter{console: console}
	stderr := &lineWriter{console: console}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	logger.Info("launching server", "command", strings.Join(argv, " "), "dir", cfg.Dir)

	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	console.attach(stdin)

	p := &Process{
		cfg:     cfg,
		cmd:     cmd,
		console: console,
		logger:  logger.With("pid", cmd.Process.Pid),
		exited:  make(chan struct{}),
	}

	go p.watch(stdout, stderr)

	return p, nil
}

// watch waits for the process independently of any Stop call.
func (p *Process) watch(outputs ...*lineWriter) {
	err := p.cmd.Wait()

	for _, w := range outputs {
		w.flush()
	}

	p.console.detach()

	p.mu.Lock()
	p.exitErr = err
	p.unexpected = !p.stopRequested
	unexpected := p.unexpected
	p.mu.Unlock()

	if unexpected {
		p.logger.Warn("server exited without a stop request", "err", err)
	} else {
		p.logger.Info("server exited", "err", err)
	}

	close(p.exited)
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Exited is closed once the process has terminated.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitErr returns the error from waiting on the process; nil for a clean
// exit. Only meaningful after Exited is closed.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exitErr
}

// Unexpected reports whether the process exited before Stop was called.
func (p *Process) Unexpected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.unexpected
}

// Send writes a console command to the server.
func (p *Process) Send(command string) error {
	return p.console.Send(command)
}

// Stop sends the stop command and waits, without a deadline, until the
// process exits. It is safe to call more than once and from several
// goroutines; every caller returns once the process is gone.
func (p *Process) Stop() error {
	p.mu.Lock()
	first := !p.stopRequested
	p.stopRequested = true
	p.mu.Unlock()

	select {
	case <-p.exited:
		return nil
	default:
	}

	if first {
		err := p.console.Send(p.cfg.StopCommand)
		if err != nil && !errors.Is(err, ErrNotRunning) {
			p.logger.Warn("could not send stop command", "err", err)
		}
	}

	ticker := time.NewTicker(p.cfg.StopPollInterval)
	defer ticker.Stop()

	waited := time.Duration(0)

	for {
		select {
		case <-p.exited:
			return nil
		case <-ticker.C:
			waited += p.cfg.StopPollInterval
			if first && waited%(30*time.Second) == 0 { //nolint:mnd // periodic reminder
				p.logger.Info("still waiting for server to stop", "waited", waited)
			}
		}
	}
}
