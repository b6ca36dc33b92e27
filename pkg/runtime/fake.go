package runtime

import (
	"os"
	"sync"
	"time"
)

// FakeClock is a Clock whose tickers only tick when Tick is called.
// Time does not advance unless Advance or Tick are called.
type FakeClock struct {
	mutex   sync.Mutex
	now     time.Time
	tickers []*FakeTicker
}

// NewFakeClock returns a FakeClock set at the given time
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// NewTicker implements Clock's NewTicker method
func (c *FakeClock) NewTicker(period time.Duration) Ticker {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	t := &FakeTicker{
		Period:  period,
		channel: make(chan time.Time),
		stopped: make(chan struct{}),
	}
	c.tickers = append(c.tickers, t)

	return t
}

// Now implements Clock's Now method
func (c *FakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.now
}

// Advance moves the clock forward without ticking
func (c *FakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.now = c.now.Add(d)
}

// Tickers returns the number of tickers that have not been stopped
func (c *FakeClock) Tickers() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	active := 0
	for _, t := range c.tickers {
		if !t.isStopped() {
			active++
		}
	}

	return active
}

// Tick delivers one tick to every active ticker, blocking until each of them
// has either received it or been stopped. Returns the number of ticks received.
func (c *FakeClock) Tick() int {
	c.mutex.Lock()
	tickers := make([]*FakeTicker, len(c.tickers))
	copy(tickers, c.tickers)
	now := c.now
	c.mutex.Unlock()

	delivered := 0
	for _, t := range tickers {
		select {
		case t.channel <- now:
			delivered++
		case <-t.stopped:
		}
	}

	return delivered
}

// FakeTicker is a Ticker controlled by a FakeClock
type FakeTicker struct {
	Period   time.Duration
	channel  chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

// C implements Ticker's C method
func (t *FakeTicker) C() <-chan time.Time {
	return t.channel
}

// Stop implements Ticker's Stop method
func (t *FakeTicker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
	})
}

func (t *FakeTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// FakeSignal implements a fake signal handling for testing
type FakeSignal struct {
	channel chan os.Signal
}

// NewFakeSignal returns a FakeSignal
func NewFakeSignal() *FakeSignal {
	return &FakeSignal{
		channel: make(chan os.Signal),
	}
}

// Notify implements Signal's interface Notify method
func (f *FakeSignal) Notify(_ ...os.Signal) <-chan os.Signal {
	return f.channel
}

// Reset implements Signal's interface Reset method. It is noop.
func (f *FakeSignal) Reset(_ ...os.Signal) {
	// noop
}

// Send sends the given signal to the signal notification channel if the signal was
// previously specified in a call to Notify
func (f *FakeSignal) Send(signal os.Signal) {
	f.channel <- signal
}

// FakeRuntime holds the state of a fake runtime for testing
type FakeRuntime struct {
	FakeClock  *FakeClock
	FakeSignal *FakeSignal
}

// NewFakeRuntime creates a default FakeRuntime
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{
		FakeClock:  NewFakeClock(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)),
		FakeSignal: NewFakeSignal(),
	}
}

// Clock implements Clock method from Environment interface
func (f *FakeRuntime) Clock() Clock {
	return f.FakeClock
}

// Signal implements Signal method from Environment interface
func (f *FakeRuntime) Signal() Signals {
	return f.FakeSignal
}
