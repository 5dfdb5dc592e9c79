// Package lifecycle sequences one hosting cycle: claim the shared server,
// pull its files, run it locally, push the files back and release it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joe/server-sync/internal/gameserver"
	"github.com/joe/server-sync/internal/netaddr"
	"github.com/joe/server-sync/internal/syncengine"
)

// DefaultPollInterval is how often the supervisor checks for a stop request
// or a dead server.
const DefaultPollInterval = 200 * time.Millisecond

const subscriberBuffer = 64

var (
	ErrCycleInProgress = errors.New("a server cycle is already in progress")
	ErrRemoteHosted    = errors.New("server is already hosted by another participant")
)

// Engine is the synchroniser the lifecycle drives. *syncengine.Engine
// satisfies it.
type Engine interface {
	RetrieveFiles(ctx context.Context) (*syncengine.RetrieveResult, error)
	SaveFiles(ctx context.Context) (*syncengine.SaveResult, error)
	HostRecord() (string, error)
	PublishHost(address string) error
	ClearHost() error
	IsBusy() (bool, error)
	ClearBusyFlag() error
}

// Runner starts the local server. *gameserver.Launcher satisfies it.
type Runner interface {
	Launch(ctx context.Context) (gameserver.Instance, error)
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithAddressSource sets where the host address comes from. The default asks
// netaddr.DefaultEndpoint.
func WithAddressSource(source netaddr.Source) Option {
	return func(l *Lifecycle) { l.address = source }
}

// WithPollInterval sets the supervisor's polling period.
func WithPollInterval(d time.Duration) Option {
	return func(l *Lifecycle) { l.pollInterval = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) { l.logger = logger }
}

// cycle is one claim of the lifecycle, either a full hosting cycle or a
// single override action.
type cycle struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

func newCycle() *cycle {
	return &cycle{stop: make(chan struct{}), done: make(chan struct{})}
}

func (c *cycle) requestStop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *cycle) stopRequested() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Lifecycle is the top-level state machine. At most one cycle runs at a time.
type Lifecycle struct {
	engine       Engine
	runner       Runner
	address      netaddr.Source
	pollInterval time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	state     State
	host      string
	current   *cycle
	last      *cycle
	listeners map[chan State]struct{}
}

// New creates a lifecycle in the Offline state.
func New(engine Engine, runner Runner, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		engine:       engine,
		runner:       runner,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
		listeners:    make(map[chan State]struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.address == nil {
		l.address = netaddr.NewResolver(netaddr.WithLogger(l.logger))
	}

	return l
}

// Status returns the current state.
func (l *Lifecycle) Status() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

// Subscribe returns a channel that receives the current state and then
// every transition. The returned function unsubscribes.
func (l *Lifecycle) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)

	l.mu.Lock()
	ch <- l.state
	l.listeners[ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, ch)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Start begins a hosting cycle and returns once the cycle is under way.
// It fails with ErrCycleInProgress while another cycle or override runs and
// with ErrRemoteHosted when another participant already hosts the server.
func (l *Lifecycle) Start(ctx context.Context) error {
	c, err := l.claim()
	if err != nil {
		l.logger.Warn("ignoring start request", "err", err)

		return err
	}

	host, err := l.engine.HostRecord()
	if err != nil {
		l.release(c, err)

		return err
	}

	if host != "" {
		err = fmt.Errorf("%w: %s", ErrRemoteHosted, host)
		l.logger.Info("server is hosted elsewhere, not starting locally", "host", host)
		l.release(c, err)

		return err
	}

	go l.run(ctx, c)

	return nil
}

// RequestStop asks the running cycle to shut the server down and save.
// It returns immediately; use Wait to block until the cycle has finished.
func (l *Lifecycle) RequestStop() {
	l.mu.Lock()
	c := l.current
	l.mu.Unlock()

	if c != nil {
		l.logger.Info("stop requested")
		c.requestStop()
	}
}

// Wait blocks until the current cycle ends and returns its error. With no
// cycle running it returns the last cycle's error.
func (l *Lifecycle) Wait() error {
	l.mu.Lock()
	c := l.current
	if c == nil {
		c = l.last
	}
	l.mu.Unlock()

	if c == nil {
		return nil
	}

	<-c.done

	return c.err
}

// run is the supervisor for one hosting cycle.
func (l *Lifecycle) run(ctx context.Context, c *cycle) {
	// Saving must not be cut short by the caller's context.
	saveCtx := context.WithoutCancel(ctx)

	err := l.claimHost(ctx)
	if err != nil {
		l.release(c, err)

		return
	}

	l.setState(RetrievingFiles)

	_, err = l.engine.RetrieveFiles(ctx)
	if err != nil {
		l.release(c, errors.Join(fmt.Errorf("retrieving files: %w", err), l.clearHost()))

		return
	}

	if c.stopRequested() {
		l.logger.Info("stop requested before the server started, releasing it")
		l.release(c, l.clearHost())

		return
	}

	l.setState(Running)

	instance, err := l.runner.Launch(ctx)
	if err != nil {
		l.release(c, errors.Join(fmt.Errorf("launching server: %w", err), l.clearHost()))

		return
	}

	l.supervise(ctx, c, instance)

	l.setState(SavingFiles)

	err = instance.Stop()
	if err != nil {
		l.logger.Error("server did not stop cleanly", "err", err)
	}

	_, saveErr := l.engine.SaveFiles(saveCtx)
	if saveErr != nil {
		saveErr = fmt.Errorf("saving files: %w", saveErr)
		l.logger.Error("save failed, releasing the server anyway", "err", saveErr)

		// SaveFiles clears the flag itself; this covers a failed clear.
		if clearErr := l.engine.ClearBusyFlag(); clearErr != nil {
			saveErr = errors.Join(saveErr, clearErr)
		}
	}

	l.release(c, errors.Join(saveErr, l.clearHost()))
}

// supervise polls until a stop is requested, the context ends or the server
// dies on its own.
func (l *Lifecycle) supervise(ctx context.Context, c *cycle, instance gameserver.Instance) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			l.logger.Info("shutting down server", "reason", ctx.Err())

			return
		case <-instance.Exited():
			l.logger.Warn("server terminated unexpectedly, saving files")

			return
		case <-ticker.C:
		}
	}
}

func (l *Lifecycle) claimHost(ctx context.Context) error {
	addr, err := l.address.Address(ctx)
	if err != nil {
		return fmt.Errorf("resolving host address: %w", err)
	}

	err = l.engine.PublishHost(addr)
	if err != nil {
		return err //nolint:wrapcheck // engine errors carry context
	}

	l.mu.Lock()
	l.host = addr
	l.mu.Unlock()

	l.logger.Info("claimed server", "address", addr)

	return nil
}

func (l *Lifecycle) clearHost() error {
	l.mu.Lock()
	l.host = ""
	l.mu.Unlock()

	return l.engine.ClearHost() //nolint:wrapcheck // engine errors carry context
}

// claim reserves the lifecycle for one cycle.
func (l *Lifecycle) claim() (*cycle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil || l.state != Offline {
		return nil, ErrCycleInProgress
	}

	l.current = newCycle()

	return l.current, nil
}

// release ends a cycle, returning to Offline.
func (l *Lifecycle) release(c *cycle, err error) {
	if err != nil {
		l.logger.Error("server cycle failed", "err", err)
	}

	c.err = err

	l.mu.Lock()
	l.current = nil
	l.last = c
	l.mu.Unlock()

	l.setState(Offline)
	close(c.done)
}

func (l *Lifecycle) setState(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == state {
		return
	}

	l.logger.Info("server state changed", "from", l.state, "to", state)
	l.state = state

	for ch := range l.listeners {
		select {
		case ch <- state:
		default:
		}
	}
}
