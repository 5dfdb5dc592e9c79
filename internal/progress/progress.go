// Package progress observes bytes moved by a transfer and turns pairs of
// point-in-time snapshots into percent, throughput and ETA.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Exported constants.
const (
	// WindowSize is how many polled samples the rate is averaged over.
	WindowSize = 10
	// PercentageScale converts 0-1 range to 0-100 range.
	PercentageScale = 100.0
)

// Kind tags what a transfer is doing.
type Kind string

// Transfer kinds.
const (
	KindUpload   Kind = "upload"
	KindDownload Kind = "download"
	KindMetadata Kind = "metadata"
)

// Snapshot is a point-in-time view of one transfer.
type Snapshot struct {
	Kind       Kind
	Name       string
	BytesDone  int64
	BytesTotal int64 // 0 when unknown
	Timestamp  time.Time
}

// Stats is derived from two snapshots of the same transfer.
type Stats struct {
	Percent        float64 // 0-100, 0 when the total is unknown
	BytesPerSecond float64
	ETA            time.Duration // 0 when it cannot be estimated
}

// Compute derives stats from an earlier and a later snapshot.
// It has no side effects.
func Compute(prev, cur Snapshot) Stats {
	var stats Stats

	if cur.BytesTotal > 0 {
		stats.Percent = min(float64(cur.BytesDone)/float64(cur.BytesTotal)*PercentageScale, PercentageScale)
	}

	elapsed := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	moved := cur.BytesDone - prev.BytesDone

	if elapsed > 0 && moved > 0 {
		stats.BytesPerSecond = float64(moved) / elapsed
	}

	remaining := cur.BytesTotal - cur.BytesDone
	if stats.BytesPerSecond > 0 && remaining > 0 {
		stats.ETA = time.Duration(float64(remaining) / stats.BytesPerSecond * float64(time.Second))
	}

	return stats
}

// Format renders stats for a snapshot in a log/status friendly form.
func Format(snap Snapshot, stats Stats) string {
	if snap.BytesTotal <= 0 {
		return fmt.Sprintf("%s %s: %s", snap.Kind, snap.Name, humanize.IBytes(uint64(max(snap.BytesDone, 0))))
	}

	line := fmt.Sprintf("%s %s: %.0f%% of %s", snap.Kind, snap.Name, stats.Percent,
		humanize.IBytes(uint64(snap.BytesTotal)))

	if stats.BytesPerSecond > 0 {
		line += fmt.Sprintf(", %s/s", humanize.IBytes(uint64(stats.BytesPerSecond)))
	}

	if stats.ETA > 0 {
		line += ", ETA " + stats.ETA.Round(time.Second).String()
	}

	return line
}

// Tracker counts bytes for one transfer. It is safe for concurrent use:
// the transfer goroutine adds bytes while pollers take snapshots.
type Tracker struct {
	mu      sync.Mutex
	kind    Kind
	name    string
	done    int64
	total   int64
	now     func() time.Time
	samples []Snapshot
}

// NewTracker creates a tracker. A nil clock uses time.Now.
func NewTracker(kind Kind, name string, total int64, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}

	return &Tracker{kind: kind, name: name, total: total, now: now}
}

// Add records n more bytes moved.
func (t *Tracker) Add(n int64) {
	t.mu.Lock()
	t.done += n
	t.mu.Unlock()
}

// SetTotal records the transfer size once it is known.
func (t *Tracker) SetTotal(total int64) {
	t.mu.Lock()
	t.total = total
	t.mu.Unlock()
}

// Reset zeroes the byte count, used when a transfer is retried whole.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.done = 0
	t.samples = t.samples[:0]
	t.mu.Unlock()
}

// Snapshot returns the current state and records it in the rate window.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.sampleLocked()
}

// Stats takes a snapshot and computes stats against the oldest sample in
// the window, smoothing the rate over the last WindowSize polls.
func (t *Tracker) Stats() (Snapshot, Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.sampleLocked()

	return cur, Compute(t.samples[0], cur)
}

// sampleLocked appends the current state to the window. The window is never
// empty afterwards. Callers hold t.mu.
func (t *Tracker) sampleLocked() Snapshot {
	snap := Snapshot{
		Kind:       t.kind,
		Name:       t.name,
		BytesDone:  t.done,
		BytesTotal: t.total,
		Timestamp:  t.now(),
	}

	t.samples = append(t.samples, snap)
	if len(t.samples) > WindowSize {
		t.samples = t.samples[len(t.samples)-WindowSize:]
	}

	return snap
}

// Reader wraps r so every read is counted.
func (t *Tracker) Reader(r io.Reader) io.Reader {
	return &countingReader{reader: r, tracker: t}
}

// Writer wraps w so every write is counted.
func (t *Tracker) Writer(w io.Writer) io.Writer {
	return &countingWriter{writer: w, tracker: t}
}

type countingReader struct {
	reader  io.Reader
	tracker *Tracker
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.tracker.Add(int64(n))

	return n, err //nolint:wrapcheck // pass-through reader must not wrap io.EOF
}

type countingWriter struct {
	writer  io.Writer
	tracker *Tracker
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.writer.Write(p)
	w.tracker.Add(int64(n))

	return n, err //nolint:wrapcheck // pass-through writer
}
