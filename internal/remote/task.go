package remote

import (
	"context"
	"fmt"

	"github.com/joe/server-sync/internal/progress"
)

// Task is an in-flight remote operation yielding R.
// It is owned by the caller that issued it.
type Task[R any] struct {
	name    string
	tracker *progress.Tracker
	done    chan struct{}
	result  R
	err     error
}

func newTask[R any](name string, tracker *progress.Tracker) *Task[R] {
	return &Task[R]{name: name, tracker: tracker, done: make(chan struct{})}
}

// Name identifies the remote object the task works on.
func (t *Task[R]) Name() string {
	return t.name
}

// Done is closed once the task has a result.
func (t *Task[R]) Done() <-chan struct{} {
	return t.done
}

// Result blocks until the task completes.
func (t *Task[R]) Result() (R, error) {
	<-t.done

	return t.result, t.err
}

// Wait blocks until the task completes or ctx ends. A cancelled wait does
// not stop the operation; it keeps its place in the queue.
func (t *Task[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero R

		return zero, fmt.Errorf("waiting for %s: %w", t.name, ctx.Err())
	}
}

// Progress returns the task's current transfer snapshot.
func (t *Task[R]) Progress() progress.Snapshot {
	return t.tracker.Snapshot()
}

// Stats returns the current snapshot with rate and ETA.
func (t *Task[R]) Stats() (progress.Snapshot, progress.Stats) {
	return t.tracker.Stats()
}

func (t *Task[R]) complete(result R, err error) {
	t.result = result
	t.err = err
	close(t.done)
}

// failedTask returns a task that is already complete with err.
func failedTask[R any](name string, kind progress.Kind, err error) *Task[R] {
	task := newTask[R](name, progress.NewTracker(kind, name, 0, nil))

	var zero R
	task.complete(zero, err)

	return task
}
