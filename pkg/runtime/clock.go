package runtime

import "time"

// Ticker delivers ticks at intervals until stopped
type Ticker interface {
	// C returns the channel on which ticks are delivered
	C() <-chan time.Time
	// Stop turns off the ticker. No more ticks are delivered after Stop returns.
	Stop()
}

// Clock abstracts the creation of tickers and the current time
type Clock interface {
	// NewTicker returns a Ticker that ticks with the given period
	NewTicker(period time.Duration) Ticker
	// Now returns the current time
	Now() time.Time
}

type clock struct{}

// DefaultClock returns a Clock backed by the time package
func DefaultClock() Clock {
	return clock{}
}

func (clock) NewTicker(period time.Duration) Ticker {
	return &ticker{t: time.NewTicker(period)}
}

func (clock) Now() time.Time {
	return time.Now()
}

type ticker struct {
	t *time.Ticker
}

func (t *ticker) C() <-chan time.Time {
	return t.t.C
}

func (t *ticker) Stop() {
	t.t.Stop()
}
