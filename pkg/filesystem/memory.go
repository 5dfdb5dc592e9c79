package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemoryFileSystem is an in-memory remote directory for tests.
// Every session from Dial shares the same objects. Failures can be injected
// to exercise reconnect and retry paths.
type MemoryFileSystem struct {
	mu       sync.Mutex
	files    map[string][]byte
	failures []error
	rules    map[string]error
	ops      []string
	dials    int
	dialErr  error
}

// NewMemoryFileSystem creates an empty remote.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: make(map[string][]byte)}
}

// Dial opens a new session. It matches the remote store's dialer signature.
func (m *MemoryFileSystem) Dial(_ context.Context) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dials++

	if m.dialErr != nil {
		return nil, m.dialErr
	}

	session := &MemoryConn{fs: m}

	return session, nil
}

// Dials returns how many sessions were opened.
func (m *MemoryFileSystem) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.dials
}

// FailDial makes every subsequent Dial fail with err (nil restores).
func (m *MemoryFileSystem) FailDial(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dialErr = err
}

// FailNext queues errors returned by the next operations, one per operation.
// A connection-lost error also drops the session that hit it.
func (m *MemoryFileSystem) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures = append(m.failures, errs...)
}

// FailOps makes every operation whose log line contains match fail with err
// until cleared with a nil err.
func (m *MemoryFileSystem) FailOps(match string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rules == nil {
		m.rules = make(map[string]error)
	}

	if err == nil {
		delete(m.rules, match)

		return
	}

	m.rules[match] = err
}

// Ops returns the log of operations performed, e.g. "store files/a.zip".
func (m *MemoryFileSystem) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.ops...)
}

// ResetOps clears the operation log.
func (m *MemoryFileSystem) ResetOps() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ops = nil
}

// Put sets an object directly, as another participant would.
func (m *MemoryFileSystem) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[path.Clean(name)] = append([]byte(nil), data...)
}

// Get reads an object directly.
func (m *MemoryFileSystem) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.files[path.Clean(name)]

	return append([]byte(nil), data...), ok
}

// Delete removes an object directly.
func (m *MemoryFileSystem) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, path.Clean(name))
}

// ListFiles returns all object names, sorted.
func (m *MemoryFileSystem) ListFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// begin records an operation and pops an injected failure, if any.
func (m *MemoryFileSystem) begin(session *MemoryConn, op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.closed {
		return fmt.Errorf("%s: %w", op, ErrConnectionLost)
	}

	m.ops = append(m.ops, op)

	var err error

	for match, ruleErr := range m.rules {
		if strings.Contains(op, match) {
			err = ruleErr
		}
	}

	if err == nil && len(m.failures) > 0 {
		err = m.failures[0]
		m.failures = m.failures[1:]
	}

	if err == nil {
		return nil
	}

	if IsConnectionLost(err) {
		session.closed = true
	}

	return err
}

// MemoryConn is one session against a MemoryFileSystem.
type MemoryConn struct {
	fs     *MemoryFileSystem
	closed bool
}

// Close ends the session.
func (c *MemoryConn) Close() error {
	c.fs.mu.Lock()
	defer c.fs.mu.Unlock()

	c.closed = true

	return nil
}

// Open returns the object's content.
func (c *MemoryConn) Open(name string) (io.ReadCloser, error) {
	name = path.Clean(name)

	if err := c.fs.begin(c, "open "+name); err != nil { //nolint:noinlineerr // guard clause
		return nil, err
	}

	data, ok := c.fs.Get(name)
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, ErrNotExist)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Remove deletes the object.
func (c *MemoryConn) Remove(name string) error {
	name = path.Clean(name)

	if err := c.fs.begin(c, "remove "+name); err != nil { //nolint:noinlineerr // guard clause
		return err
	}

	if _, ok := c.fs.Get(name); !ok {
		return fmt.Errorf("remove %s: %w", name, ErrNotExist)
	}

	c.fs.Delete(name)

	return nil
}

// Scan lists objects below dir. Directories are implied by object names.
func (c *MemoryConn) Scan(dir string) FileScanner {
	dir = path.Clean(dir)

	if err := c.fs.begin(c, "scan "+dir); err != nil { //nolint:noinlineerr // guard clause
		return newErrorScanner(err)
	}

	prefix := dir + "/"
	if dir == "." {
		prefix = ""
	}

	files := make([]FileInfo, 0)

	for _, name := range c.fs.ListFiles() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		data, _ := c.fs.Get(name)
		files = append(files, FileInfo{
			RelativePath: strings.TrimPrefix(name, prefix),
			Size:         int64(len(data)),
		})
	}

	return newCollectingScanner(func() ([]FileInfo, error) { return files, nil })
}

// Stat reports the object's size.
func (c *MemoryConn) Stat(name string) (FileInfo, error) {
	name = path.Clean(name)

	if err := c.fs.begin(c, "stat "+name); err != nil { //nolint:noinlineerr // guard clause
		return FileInfo{}, err
	}

	data, ok := c.fs.Get(name)
	if !ok {
		return FileInfo{}, fmt.Errorf("stat %s: %w", name, ErrNotExist)
	}

	return FileInfo{RelativePath: name, Size: int64(len(data))}, nil
}

// Store replaces the object with everything read from r.
func (c *MemoryConn) Store(name string, r io.Reader) error {
	name = path.Clean(name)

	if err := c.fs.begin(c, "store "+name); err != nil { //nolint:noinlineerr // guard clause
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}

	c.fs.Put(name, data)

	return nil
}
