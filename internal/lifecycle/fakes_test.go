package lifecycle_test

import (
	"context"
	"sync"

	"github.com/joe/server-sync/internal/gameserver"
	"github.com/joe/server-sync/internal/syncengine"
)

type fakeEngine struct {
	mu          sync.Mutex
	host        string
	busy        bool
	calls       []string
	retrieveErr error
	saveErr     error
	retrieveHit chan struct{} // closed when RetrieveFiles starts, if non-nil
	retrieveGo  chan struct{} // RetrieveFiles waits on it, if non-nil
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) RetrieveFiles(context.Context) (*syncengine.RetrieveResult, error) {
	f.record("retrieve")

	if f.retrieveHit != nil {
		close(f.retrieveHit)
	}

	if f.retrieveGo != nil {
		<-f.retrieveGo
	}

	return &syncengine.RetrieveResult{}, f.retrieveErr
}

func (f *fakeEngine) SaveFiles(context.Context) (*syncengine.SaveResult, error) {
	f.record("save")

	return &syncengine.SaveResult{}, f.saveErr
}

func (f *fakeEngine) HostRecord() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.host, nil
}

func (f *fakeEngine) PublishHost(address string) error {
	f.record("publish " + address)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.host = address

	return nil
}

func (f *fakeEngine) ClearHost() error {
	f.record("clear host")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.host = ""

	return nil
}

func (f *fakeEngine) IsBusy() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.busy, nil
}

func (f *fakeEngine) ClearBusyFlag() error {
	f.record("clear busy")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.busy = false

	return nil
}

type fakeInstance struct {
	exited   chan struct{}
	once     sync.Once
	mu       sync.Mutex
	stops    int
}

func (i *fakeInstance) Stop() error {
	i.mu.Lock()
	i.stops++
	i.mu.Unlock()

	i.once.Do(func() { close(i.exited) })

	return nil
}

func (i *fakeInstance) Exited() <-chan struct{} {
	return i.exited
}

func (i *fakeInstance) crash() {
	i.once.Do(func() { close(i.exited) })
}

func (i *fakeInstance) Stops() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.stops
}

type fakeRunner struct {
	instance  *fakeInstance
	launchErr error
	launches  int
	mu        sync.Mutex
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{instance: &fakeInstance{exited: make(chan struct{})}}
}

func (r *fakeRunner) Launch(context.Context) (gameserver.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.launches++

	if r.launchErr != nil {
		return nil, r.launchErr
	}

	return r.instance, nil
}

func (r *fakeRunner) Launches() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.launches
}

// gatedAddress blocks address lookups until release is closed.
type gatedAddress struct {
	hit     chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedAddress() *gatedAddress {
	return &gatedAddress{hit: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedAddress) Address(ctx context.Context) (string, error) {
	g.once.Do(func() { close(g.hit) })

	select {
	case <-g.release:
		return "198.51.100.7", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
