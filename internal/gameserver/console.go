package gameserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// DefaultHistorySize is how many console lines are retained for late subscribers.
const DefaultHistorySize = 1000

// subscriberBuffer bounds each subscriber channel; slow readers drop lines.
const subscriberBuffer = 256

var (
	ErrNotRunning = errors.New("server process not running")
)

// Line is one line of console traffic.
type Line struct {
	Seq   uint64
	Text  string
	Input bool // typed by an operator rather than printed by the server
}

// Console bridges a server's standard streams to any number of readers and
// one command input. It outlives individual processes: history carries over
// between runs so the operator sees the previous session's tail.
type Console struct {
	mu      sync.Mutex
	history []Line
	max     int
	nextSeq uint64
	subs    map[chan Line]struct{}
	input   io.Writer
	mirror  io.Writer
}

// NewConsole creates a console keeping historySize lines. Each line is also
// written to mirror when it is non-nil.
func NewConsole(historySize int, mirror io.Writer) *Console {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}

	return &Console{
		max:     historySize,
		nextSeq: 1,
		subs:    make(map[chan Line]struct{}),
		mirror:  mirror,
	}
}

// Subscribe returns the current history and a channel of subsequent lines.
// The returned function unsubscribes and closes the channel.
func (c *Console) Subscribe() ([]Line, <-chan Line, func()) {
	ch := make(chan Line, subscriberBuffer)

	c.mu.Lock()
	snapshot := append([]Line(nil), c.history...)
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once

	return snapshot, ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// History returns a copy of the retained lines.
func (c *Console) History() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Line(nil), c.history...)
}

// Send writes command to the attached server's stdin and records it.
func (c *Console) Send(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}

	c.mu.Lock()
	input := c.input
	c.mu.Unlock()

	if input == nil {
		return ErrNotRunning
	}

	_, err := io.WriteString(input, command+"\n")
	if err != nil {
		return fmt.Errorf("failed to send %q to server: %w", command, err)
	}

	c.publish("> "+command, true)

	return nil
}

// Println records a line that did not come from the server, such as a
// status note from the supervisor.
func (c *Console) Println(text string) {
	c.publish(text, false)
}

func (c *Console) attach(input io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.input = input
}

func (c *Console) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.input = nil
}

func (c *Console) publish(text string, input bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := Line{Seq: c.nextSeq, Text: text, Input: input}
	c.nextSeq++

	c.history = append(c.history, line)
	if len(c.history) > c.max {
		c.history = c.history[len(c.history)-c.max:]
	}

	if c.mirror != nil {
		_, _ = io.WriteString(c.mirror, text+"\n")
	}

	for ch := range c.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// lineWriter splits a byte stream into console lines. exec.Cmd copies the
// child's output into it, so it must tolerate writes from two goroutines
// (stdout and stderr).
type lineWriter struct {
	mu      sync.Mutex
	console *Console
	partial []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)

	for {
		idx := bytes.IndexByte(w.partial, '\n')
		if idx < 0 {
			break
		}

		w.console.publish(strings.TrimRight(string(w.partial[:idx]), "\r"), false)
		w.partial = w.partial[idx+1:]
	}

	return len(p), nil
}

// flush publishes a trailing line with no newline.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.partial) > 0 {
		w.console.publish(strings.TrimRight(string(w.partial), "\r"), false)
		w.partial = nil
	}
}
