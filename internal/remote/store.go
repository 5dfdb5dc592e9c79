// Package remote is the client for the shared rendezvous directory.
//
// A Store owns one lazily established connection and funnels every operation
// through a single worker, so at most one remote operation is in flight at a
// time. Callers may submit concurrently; operations run in submission order.
// Each operation is attempted up to a fixed ceiling, reconnecting first when
// the previous attempt lost the connection.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/joe/server-sync/internal/progress"
	"github.com/joe/server-sync/pkg/filesystem"
)

// Exported constants.
const (
	// DefaultAttempts is the retry ceiling, counting the first try.
	DefaultAttempts = 3
	// DefaultRetryDelay is the pause between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultProgressLogInterval is how often a running transfer logs its progress.
	DefaultProgressLogInterval = 5 * time.Second
	// QueueSize is the job channel buffer; submissions block beyond it.
	QueueSize = 100
)

// Option configures a Store.
type Option func(*Store)

// WithAttempts sets the retry ceiling.
func WithAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) { s.retryDelay = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithProgressLogInterval sets how often transfers log progress (0 disables).
func WithProgressLogInterval(d time.Duration) Option {
	return func(s *Store) { s.progressEvery = d }
}

// Store is the SyncClient for the rendezvous directory.
type Store struct {
	dial          filesystem.Dialer
	logger        *slog.Logger
	attempts      int
	retryDelay    time.Duration
	progressEvery time.Duration

	conn filesystem.Conn // owned by the worker goroutine

	mu      sync.Mutex // guards jobs/closed for submitters
	jobs    chan func()
	closed  bool
	stopped chan struct{}

	activeMu sync.RWMutex
	active   *progress.Tracker
}

// New creates a Store and starts its worker. No connection is made until the
// first operation runs.
func New(dial filesystem.Dialer, opts ...Option) *Store {
	store := &Store{
		dial:          dial,
		logger:        slog.Default(),
		attempts:      DefaultAttempts,
		retryDelay:    DefaultRetryDelay,
		progressEvery: DefaultProgressLogInterval,
		jobs:          make(chan func(), QueueSize),
		stopped:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(store)
	}

	go store.work()

	return store
}

// Open parses rawURL and creates a Store for it. An empty URL is a
// configuration error and is returned without any network activity.
func Open(rawURL string, timeout time.Duration, opts ...Option) (*Store, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("%w: remote URL is empty", ErrMissingConfig)
	}

	target, err := filesystem.ParseRemoteURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingConfig, err)
	}

	return New(filesystem.NewDialer(target, timeout), opts...), nil
}

// Close waits for queued operations to finish, then drops the connection.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()

	<-s.stopped

	return nil
}

// Active returns the progress of the operation currently running, if any.
func (s *Store) Active() (progress.Snapshot, progress.Stats, bool) {
	s.activeMu.RLock()
	tracker := s.active
	s.activeMu.RUnlock()

	if tracker == nil {
		return progress.Snapshot{}, progress.Stats{}, false
	}

	snap, stats := tracker.Stats()

	return snap, stats, true
}

// GetContent returns the text of a remote object, or "" if it does not exist.
func (s *Store) GetContent(name string) *Task[string] {
	return submit(s, "get", name, progress.KindMetadata, 0,
		func(conn filesystem.Conn, tracker *progress.Tracker) (string, error) {
			rc, err := conn.Open(name)
			if errors.Is(err, filesystem.ErrNotExist) {
				return "", nil
			}

			if err != nil {
				return "", err //nolint:wrapcheck // wrapped by the retry loop
			}

			data, err := io.ReadAll(tracker.Reader(rc))
			closeErr := rc.Close()

			if err != nil {
				return "", fmt.Errorf("failed to read %s: %w", name, err)
			}

			if closeErr != nil {
				return "", fmt.Errorf("failed to finish reading %s: %w", name, closeErr)
			}

			return strings.TrimSpace(string(data)), nil
		})
}

// SetContent replaces a remote object's text.
func (s *Store) SetContent(name, text string) *Task[struct{}] {
	return submit(s, "set", name, progress.KindMetadata, int64(len(text)),
		func(conn filesystem.Conn, tracker *progress.Tracker) (struct{}, error) {
			return struct{}{}, conn.Store(name, tracker.Reader(strings.NewReader(text))) //nolint:wrapcheck // wrapped by the retry loop
		})
}

// Delete removes a remote object. Deleting a missing object succeeds.
func (s *Store) Delete(name string) *Task[struct{}] {
	return submit(s, "delete", name, progress.KindMetadata, 0,
		func(conn filesystem.Conn, _ *progress.Tracker) (struct{}, error) {
			err := conn.Remove(name)
			if errors.Is(err, filesystem.ErrNotExist) {
				return struct{}{}, nil
			}

			return struct{}{}, err //nolint:wrapcheck // wrapped by the retry loop
		})
}

// Exists reports whether a remote object exists.
func (s *Store) Exists(name string) *Task[bool] {
	return submit(s, "exists", name, progress.KindMetadata, 0,
		func(conn filesystem.Conn, _ *progress.Tracker) (bool, error) {
			_, err := conn.Stat(name)
			if errors.Is(err, filesystem.ErrNotExist) {
				return false, nil
			}

			return err == nil, err //nolint:wrapcheck // wrapped by the retry loop
		})
}

// UploadFile stores a local file at remotePath. A failed attempt is retried whole.
func (s *Store) UploadFile(localPath, remotePath string) *Task[struct{}] {
	var total int64
	if info, err := os.Stat(localPath); err == nil {
		total = info.Size()
	}

	return submit(s, "upload", remotePath, progress.KindUpload, total,
		func(conn filesystem.Conn, tracker *progress.Tracker) (struct{}, error) {
			file, err := os.Open(localPath)
			if err != nil {
				return struct{}{}, permanent(fmt.Errorf("failed to open %s for upload: %w", localPath, err))
			}

			defer func() { _ = file.Close() }()

			return struct{}{}, conn.Store(remotePath, tracker.Reader(file)) //nolint:wrapcheck // wrapped by the retry loop
		})
}

// DownloadFile fetches remotePath into localPath, replacing it only once the
// whole object has arrived.
func (s *Store) DownloadFile(remotePath, localPath string) *Task[struct{}] {
	return submit(s, "download", remotePath, progress.KindDownload, 0,
		func(conn filesystem.Conn, tracker *progress.Tracker) (struct{}, error) {
			if info, err := conn.Stat(remotePath); err == nil {
				tracker.SetTotal(info.Size)
			}

			rc, err := conn.Open(remotePath)
			if errors.Is(err, filesystem.ErrNotExist) {
				return struct{}{}, permanent(err)
			}

			if err != nil {
				return struct{}{}, err //nolint:wrapcheck // wrapped by the retry loop
			}

			err = writeLocal(localPath, tracker.Reader(rc))
			closeErr := rc.Close()

			if err != nil {
				return struct{}{}, err
			}

			if closeErr != nil {
				return struct{}{}, fmt.Errorf("failed to finish download of %s: %w", remotePath, closeErr)
			}

			return struct{}{}, nil
		})
}

// ListFilesRecursively returns the paths of all files below dir, relative to
// dir and forward-slash separated. A missing dir lists empty.
func (s *Store) ListFilesRecursively(dir string) *Task[mapset.Set[string]] {
	return submit(s, "list", dir, progress.KindMetadata, 0,
		func(conn filesystem.Conn, _ *progress.Tracker) (mapset.Set[string], error) {
			names := mapset.NewSet[string]()
			scanner := conn.Scan(dir)

			for {
				info, ok := scanner.Next()
				if !ok {
					break
				}

				if !info.IsDir {
					names.Add(filepath.ToSlash(info.RelativePath))
				}
			}

			if err := scanner.Err(); err != nil { //nolint:noinlineerr // scanner idiom
				return nil, err //nolint:wrapcheck // wrapped by the retry loop
			}

			return names, nil
		})
}

// submit queues fn and returns its task.
func submit[R any](
	s *Store,
	op, name string,
	kind progress.Kind,
	total int64,
	fn func(conn filesystem.Conn, tracker *progress.Tracker) (R, error),
) *Task[R] {
	tracker := progress.NewTracker(kind, name, total, nil)
	task := newTask[R](name, tracker)

	job := func() {
		s.setActive(tracker)
		defer s.setActive(nil)

		stopLogging := s.logProgress(tracker, kind)
		defer stopLogging()

		var result R

		err := s.retry(op, name, tracker, func(conn filesystem.Conn) error {
			var opErr error
			result, opErr = fn(conn, tracker)

			return opErr
		})

		task.complete(result, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return failedTask[R](name, kind, ErrStoreClosed)
	}

	s.jobs <- job

	return task
}

// retry runs fn against the connection up to the retry ceiling.
func (s *Store) retry(op, name string, tracker *progress.Tracker, fn func(filesystem.Conn) error) error {
	var lastErr error

	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 && s.retryDelay > 0 {
			time.Sleep(s.retryDelay)
		}

		tracker.Reset()

		conn, err := s.connection()
		if err == nil {
			err = fn(conn)
			if err == nil {
				return nil
			}
		}

		if isPermanent(err) {
			return unwrapPermanent(err)
		}

		lastErr = err

		if conn == nil || filesystem.IsConnectionLost(err) {
			s.logger.Warn("remote connection lost, reconnecting",
				"op", op, "name", name, "attempt", attempt, "err", err)
			s.dropConnection()

			continue
		}

		s.logger.Warn("remote operation failed, retrying",
			"op", op, "name", name, "attempt", attempt, "err", err)
	}

	return &OperationError{Op: op, Name: name, Attempts: s.attempts, Err: lastErr}
}

// connection returns the live connection, dialling if there is none.
func (s *Store) connection() (filesystem.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}

	if s.dial == nil {
		return nil, fmt.Errorf("%w: no remote configured", ErrMissingConfig)
	}

	conn, err := s.dial(context.Background())
	if err != nil {
		return nil, err //nolint:wrapcheck // dialer errors already name the target
	}

	s.logger.Debug("remote connection established")
	s.conn = conn

	return conn, nil
}

func (s *Store) dropConnection() {
	if s.conn == nil {
		return
	}

	_ = s.conn.Close()
	s.conn = nil
}

func (s *Store) work() {
	defer close(s.stopped)

	for job := range s.jobs {
		job()
	}

	s.dropConnection()
}

func (s *Store) setActive(tracker *progress.Tracker) {
	s.activeMu.Lock()
	s.active = tracker
	s.activeMu.Unlock()
}

// logProgress logs the transfer's progress periodically until stopped.
func (s *Store) logProgress(tracker *progress.Tracker, kind progress.Kind) func() {
	if kind == progress.KindMetadata || s.progressEvery <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(s.progressEvery)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				snap, stats := tracker.Stats()
				s.logger.Info(progress.Format(snap, stats))
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

// writeLocal streams r into path via a temporary sibling and renames it into place.
func writeLocal(path string, r io.Reader) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755) //nolint:mnd // standard directory permission
	if err != nil {
		return permanent(fmt.Errorf("failed to create directory for %s: %w", path, err))
	}

	partial := path + ".part"

	out, err := os.Create(partial)
	if err != nil {
		return permanent(fmt.Errorf("failed to create %s: %w", partial, err))
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		_ = os.Remove(partial)

		return fmt.Errorf("failed to download into %s: %w", path, err)
	}

	if closeErr != nil {
		_ = os.Remove(partial)

		return permanent(fmt.Errorf("failed to close %s: %w", partial, closeErr))
	}

	err = os.Rename(partial, path)
	if err != nil {
		return permanent(fmt.Errorf("failed to move download into %s: %w", path, err))
	}

	return nil
}
