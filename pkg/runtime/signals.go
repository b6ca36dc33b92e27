package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

// Signals define methods for handling signals
type Signals interface {
	// Notify returns a channel for receiving notifications of the given signals
	Notify(...os.Signal) <-chan os.Signal
	// Reset stops receiving signal notifications in this channel.
	// If no signal is specified, all signals are cleared
	Reset(...os.Signal)
}

// implements the Signals interface
type signals struct {
	channel chan os.Signal
}

// DefaultSignals returns a default signal handler
func DefaultSignals() Signals {
	return &signals{
		channel: make(chan os.Signal, 1),
	}
}

// Notify implements Signal interface's Notify method
func (s *signals) Notify(signals ...os.Signal) <-chan os.Signal {
	signal.Notify(s.channel, signals...)

	return s.channel
}

// Reset implements Signal interface's Reset method
func (s *signals) Reset(signals ...os.Signal) {
	signal.Reset(signals...)
}

// SignalError is the cause of a context cancelled by WithSignals
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("received signal %q", e.Signal)
}

// WithSignals returns a context that is cancelled when any of the given signals
// is received. The cause of the cancellation is a *SignalError.
// The returned function must be called to stop receiving signals.
func WithSignals(ctx context.Context, s Signals, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	sc := s.Notify(sigs...)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sc:
			cancel(&SignalError{Signal: sig})
		case <-ctx.Done():
		case <-done:
		}
	}()

	return ctx, func() {
		close(done)
		s.Reset(sigs...)
		cancel(context.Canceled)
	}
}
