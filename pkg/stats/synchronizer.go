package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/impairlab/impairctl/pkg/notify"
	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/sirupsen/logrus"
)

// DefaultPeriod is the polling period recommended by the engine
const DefaultPeriod = 500 * time.Millisecond

// Fetcher reads the statistics from the engine
type Fetcher interface {
	FetchStats(ctx context.Context) (Snapshot, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context) (Snapshot, error)

// FetchStats calls f(ctx)
func (f FetcherFunc) FetchStats(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// SynchronizerConfig defines the options of a Synchronizer
type SynchronizerConfig struct {
	// Fetcher used for polling. Required.
	Fetcher Fetcher
	// Clock that drives the polling. Defaults to the system clock.
	Clock runtime.Clock
	// Period between polls. Defaults to DefaultPeriod.
	Period time.Duration
	// Sink receives poll failures
	Sink   notify.Sink
	Logger logrus.FieldLogger
	// Gate reports if a snapshot obtained by a poll can be applied. It is
	// checked before applying every poll result.
	Gate func() bool
	// OnUpdate is called after a polled snapshot is applied. It is called
	// from the polling goroutine, without any lock held.
	OnUpdate func(Snapshot)
}

// Synchronizer periodically polls the engine statistics while started.
// Polls issued before the synchronizer is halted, or before the snapshot is
// replaced, are discarded when they complete.
type Synchronizer struct {
	config SynchronizerConfig

	mutex    sync.Mutex
	snapshot Snapshot
	// seq changes each time polls in flight must be discarded
	seq    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSynchronizer returns a Synchronizer with the given configuration
func NewSynchronizer(config SynchronizerConfig) (*Synchronizer, error) {
	if config.Fetcher == nil {
		return nil, errors.New("stats fetcher cannot be null")
	}

	if config.Period < 0 {
		return nil, fmt.Errorf("polling period must be positive: %s", config.Period)
	}

	if config.Period == 0 {
		config.Period = DefaultPeriod
	}

	if config.Clock == nil {
		config.Clock = runtime.DefaultClock()
	}

	if config.Sink == nil {
		config.Sink = notify.Discard
	}

	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	if config.Gate == nil {
		config.Gate = func() bool { return true }
	}

	if config.OnUpdate == nil {
		config.OnUpdate = func(Snapshot) {}
	}

	return &Synchronizer{config: config}, nil
}

// Start starts polling. Returns false if it was already polling.
func (s *Synchronizer) Start() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.seq++

	ticker := s.config.Clock.NewTicker(s.config.Period)
	s.wg.Add(1)
	go s.loop(ctx, ticker)

	s.config.Logger.WithField("period", s.config.Period).Debug("stats polling started")

	return true
}

// Halt stops polling without waiting for the polling goroutine to finish.
// A poll in flight is cancelled and its result, if any, discarded.
// It is safe to call Halt at any moment, including from OnUpdate.
func (s *Synchronizer) Halt() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cancel == nil {
		return
	}

	s.cancel()
	s.cancel = nil
	s.seq++

	s.config.Logger.Debug("stats polling halted")
}

// Close halts polling and waits for the polling goroutine to finish.
// It must not be called from OnUpdate or Gate.
func (s *Synchronizer) Close() {
	s.Halt()
	s.wg.Wait()
}

// Active returns true if the synchronizer is polling
func (s *Synchronizer) Active() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.cancel != nil
}

// Snapshot returns the last snapshot applied
func (s *Synchronizer) Snapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.snapshot
}

// Replace sets the current snapshot. Polls in flight are discarded.
func (s *Synchronizer) Replace(snapshot Snapshot) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.snapshot = snapshot
	s.seq++
}

func (s *Synchronizer) loop(ctx context.Context, ticker runtime.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			// a tick and the cancellation may be ready at the same time
			if ctx.Err() != nil {
				return
			}
			s.poll(ctx)
		}
	}
}

func (s *Synchronizer) poll(ctx context.Context) {
	s.mutex.Lock()
	seq := s.seq
	s.mutex.Unlock()

	snapshot, err := s.config.Fetcher.FetchStats(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.config.Logger.WithError(err).Debug("discarding failed poll issued before halt")
			return
		}

		s.config.Logger.WithError(err).Warn("stats poll failed")
		s.config.Sink.Notify(fmt.Sprintf("Failed to fetch stats: %v", err), notify.Warning)
		return
	}

	applied, ok := s.apply(seq, snapshot)
	if !ok {
		s.config.Logger.Debug("discarding stale stats snapshot")
		return
	}

	s.config.OnUpdate(applied)
}

// apply replaces the snapshot if no halt or replace happened after the poll
// identified by seq was issued
func (s *Synchronizer) apply(seq uint64, snapshot Snapshot) (Snapshot, bool) {
	if !s.config.Gate() {
		return Snapshot{}, false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if seq != s.seq {
		return Snapshot{}, false
	}

	snapshot.At = s.config.Clock.Now()
	s.snapshot = snapshot

	return snapshot, true
}
