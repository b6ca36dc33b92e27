// Package runtime abstracts the execution environment of the controller:
// the passage of time and the delivery of process signals.
package runtime

// Environment abstracts the execution environment of a process.
// It allows introduction mocks for testing.
type Environment interface {
	// Clock returns the source of tickers used for periodic tasks
	Clock() Clock
	// Signal returns an interface for handling signals
	Signal() Signals
}

// environment keeps the state of the execution environment
type environment struct {
	clock   Clock
	signals Signals
}

// DefaultEnvironment returns the default execution environment
func DefaultEnvironment() Environment {
	return environment{
		clock:   DefaultClock(),
		signals: DefaultSignals(),
	}
}

func (e environment) Clock() Clock {
	return e.clock
}

func (e environment) Signal() Signals {
	return e.signals
}
