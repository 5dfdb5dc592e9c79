package syncengine

import "time"

// MockTicker is a manually driven Ticker for tests.
type MockTicker struct {
	TickChan chan time.Time
}

// C returns the ticker's channel.
func (m *MockTicker) C() <-chan time.Time {
	return m.TickChan
}

// Stop is a no-op; the test owns the channel.
func (m *MockTicker) Stop() {}

// MockTimeProvider hands out one shared MockTicker and a settable clock.
type MockTimeProvider struct {
	Ticker  *MockTicker
	Current time.Time
	Created chan time.Duration // receives each requested interval, if non-nil
}

// NewMockTimeProvider creates a provider whose ticker the test fires manually.
func NewMockTimeProvider(now time.Time) *MockTimeProvider {
	return &MockTimeProvider{
		Ticker:  &MockTicker{TickChan: make(chan time.Time)},
		Current: now,
		Created: make(chan time.Duration, 16), //nolint:mnd // generous test buffer
	}
}

// NewTicker returns the shared mock ticker.
func (m *MockTimeProvider) NewTicker(d time.Duration) Ticker {
	if m.Created != nil {
		select {
		case m.Created <- d:
		default:
		}
	}

	return m.Ticker
}

// Now returns the fixed clock.
func (m *MockTimeProvider) Now() time.Time {
	return m.Current
}

// RealTicker wraps time.Ticker to implement the Ticker interface.
type RealTicker struct {
	ticker *time.Ticker
}

// C returns the ticker's channel.
func (r *RealTicker) C() <-chan time.Time {
	return r.ticker.C
}

// Stop stops the ticker.
func (r *RealTicker) Stop() {
	r.ticker.Stop()
}

// RealTimeProvider implements TimeProvider using real time functions.
type RealTimeProvider struct{}

// NewTicker creates a new ticker.
func (r *RealTimeProvider) NewTicker(d time.Duration) Ticker {
	return &RealTicker{ticker: time.NewTicker(d)}
}

// Now returns the current time.
func (r *RealTimeProvider) Now() time.Time {
	return time.Now()
}

// Ticker is an interface for time.Ticker to allow mocking.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TimeProvider provides time-related functionality for dependency injection.
type TimeProvider interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}
