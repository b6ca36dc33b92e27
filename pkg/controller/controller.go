// Package controller maintains the controller's belief about the run state of
// the impairment engine and enforces valid start/stop transitions.
//
// The belief is only changed by responses from the engine: confirmed commands,
// the stats read when attaching, and polls that report the engine stopped.
// A failed command never changes it.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/impairlab/impairctl/pkg/engine"
	"github.com/impairlab/impairctl/pkg/impairment"
	"github.com/impairlab/impairctl/pkg/notify"
	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/impairlab/impairctl/pkg/stats"
	"github.com/impairlab/impairctl/pkg/utils"
	"github.com/sirupsen/logrus"
)

// subscriberBuffer is the number of updates a subscriber can fall behind
// before older updates are dropped
const subscriberBuffer = 16

// Control is the interface offered to presentation layers
type Control interface {
	// SubmitConfig stores a configuration in the engine without starting it
	SubmitConfig(ctx context.Context, config impairment.Config) error
	// Start starts the engine with the given configuration
	Start(ctx context.Context, config impairment.Config) error
	// Stop stops the engine
	Stop(ctx context.Context) error
	// ResetStats sets the engine counters to zero
	ResetStats(ctx context.Context) error
	// State returns the believed run state
	State() State
	// Snapshot returns the latest statistics
	Snapshot() stats.Snapshot
	// Desired returns the configuration last loaded from or submitted to the engine
	Desired() impairment.Config
	// Subscribe returns a channel that receives updates, and a function to unsubscribe
	Subscribe() (<-chan Update, func())
}

// Options defines the optional dependencies of the Controller
type Options struct {
	// Clock drives the stats polling. Defaults to the system clock.
	Clock runtime.Clock
	// PollInterval defaults to stats.DefaultPeriod
	PollInterval time.Duration
	Logger       logrus.FieldLogger
}

// Controller implements Control using a Transport to the engine
type Controller struct {
	transport engine.Transport
	sink      notify.Sink
	logger    logrus.FieldLogger
	clock     runtime.Clock
	sync      *stats.Synchronizer

	// serializes commands
	commands sync.Mutex

	// protects the fields below
	mutex       sync.Mutex
	state       State
	desired     impairment.Config
	closed      bool
	subscribers map[int]chan Update
	nextID      int
}

// New returns a Controller that believes the engine is stopped.
// Attach should be called to reconcile the belief with the engine.
func New(transport engine.Transport, sink notify.Sink, options Options) (*Controller, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be null")
	}

	if sink == nil {
		sink = notify.Discard
	}

	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}

	if options.Clock == nil {
		options.Clock = runtime.DefaultClock()
	}

	c := &Controller{
		transport:   transport,
		sink:        sink,
		logger:      options.Logger,
		clock:       options.Clock,
		state:       Stopped,
		desired:     impairment.Default(),
		subscribers: map[int]chan Update{},
	}

	synchronizer, err := stats.NewSynchronizer(stats.SynchronizerConfig{
		Fetcher:  transport,
		Clock:    options.Clock,
		Period:   options.PollInterval,
		Sink:     sink,
		Logger:   options.Logger,
		Gate:     func() bool { return c.State() == Running },
		OnUpdate: c.onPoll,
	})
	if err != nil {
		return nil, fmt.Errorf("creating stats synchronizer: %w", err)
	}

	c.sync = synchronizer

	return c, nil
}

// Attach reconciles the controller with the engine. It loads the engine
// configuration as the desired one and reads the stats: the run flag in the
// stats becomes the believed state, starting or halting the polling as needed.
func (c *Controller) Attach(ctx context.Context) error {
	return c.attach(ctx, false)
}

// AttachWait is Attach retried every backoff while the engine is not reachable,
// for up to timeout. Only the outcome of the last attempt is notified.
func (c *Controller) AttachWait(ctx context.Context, timeout time.Duration, backoff time.Duration) error {
	var lastErr error
	err := utils.Retry(ctx, timeout, backoff, func() (bool, error) {
		lastErr = c.attach(ctx, true)
		if lastErr == nil {
			return true, nil
		}
		if engine.IsTransportError(lastErr) {
			c.logger.WithError(lastErr).Debug("engine not reachable, retrying")
			return false, nil
		}
		return false, lastErr
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, utils.ErrRetryTimeout) && lastErr != nil:
		err = fmt.Errorf("engine not reachable after %s: %w", timeout, lastErr)
	case ctx.Err() != nil:
		err = fmt.Errorf("waiting for engine: %w", err)
	default:
		// attach already notified
		return err
	}

	c.logger.WithError(err).Error("could not attach to engine")
	c.sink.Notify(fmt.Sprintf("Failed to reach engine: %v", err), notify.Error)

	return err
}

// attach reads the engine state. If retrying, a transport failure is only logged
// so the caller can try again.
func (c *Controller) attach(ctx context.Context, retrying bool) error {
	c.commands.Lock()
	defer c.commands.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	config, configErr := c.transport.FetchConfig(ctx)
	if configErr == nil {
		c.mutex.Lock()
		c.desired = config
		c.mutex.Unlock()
	}

	snapshot, err := c.transport.FetchStats(ctx)
	quiet := err != nil && retrying && engine.IsTransportError(err)

	if configErr != nil && !quiet {
		c.logger.WithError(configErr).Warn("could not load engine configuration")
		c.sink.Notify(fmt.Sprintf("Failed to load engine configuration: %v", configErr), notify.Warning)
	}

	if err != nil {
		if !quiet {
			c.logger.WithError(err).Error("could not attach to engine")
			c.sink.Notify(fmt.Sprintf("Failed to reach engine: %v", err), notify.Error)
		}
		return fmt.Errorf("attaching to engine: %w", err)
	}

	snapshot.At = c.clock.Now()
	c.sync.Replace(snapshot)

	state := Stopped
	if snapshot.Running {
		state = Running
	}
	c.setState(state)

	c.logger.WithField("state", state).Info("attached to engine")
	c.sink.Notify(fmt.Sprintf("Attached to engine (%s)", state), notify.Info)
	c.publish()

	return nil
}

// SubmitConfig validates the configuration and stores it in the engine.
// It is only allowed while the engine is stopped.
func (c *Controller) SubmitConfig(ctx context.Context, config impairment.Config) error {
	c.commands.Lock()
	defer c.commands.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	if err := c.validate(config); err != nil {
		return err
	}

	if c.State() == Running {
		c.sink.Notify("Stop the engine before changing its configuration", notify.Warning)
		return ErrConfigLocked
	}

	if err := c.transport.SubmitConfig(ctx, config); err != nil {
		c.logger.WithError(err).Error("could not submit configuration")
		c.sink.Notify(fmt.Sprintf("Failed to save configuration: %v", err), notify.Error)
		return fmt.Errorf("submitting configuration: %w", err)
	}

	c.mutex.Lock()
	c.desired = config
	c.mutex.Unlock()

	c.sink.Notify("Configuration saved", notify.Success)

	return nil
}

// Start submits the configuration to the engine and starts it. The controller
// believes the engine is running, and starts polling its stats, only if the
// engine confirms it.
func (c *Controller) Start(ctx context.Context, config impairment.Config) error {
	c.commands.Lock()
	defer c.commands.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	if state := c.State(); state == Running {
		c.sink.Notify("Engine is already running", notify.Info)
		return &InvalidTransition{Command: "start", State: state}
	}

	if err := c.validate(config); err != nil {
		return err
	}

	if err := c.transport.SubmitStart(ctx, config); err != nil {
		c.logger.WithError(err).Error("could not start engine")
		c.sink.Notify(fmt.Sprintf("Failed to start engine: %v", err), notify.Error)
		return fmt.Errorf("starting engine: %w", err)
	}

	c.mutex.Lock()
	c.desired = config
	c.mutex.Unlock()
	c.setState(Running)

	c.logger.WithField("filter", config.Filter).Info("engine started")
	c.sink.Notify("Engine started", notify.Success)
	c.publish()

	return nil
}

// Stop stops the engine. If the engine does not confirm it stopped, the
// controller keeps believing it is running and keeps polling its stats.
func (c *Controller) Stop(ctx context.Context) error {
	c.commands.Lock()
	defer c.commands.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	if state := c.State(); state == Stopped {
		c.sink.Notify("Engine is already stopped", notify.Info)
		return &InvalidTransition{Command: "stop", State: state}
	}

	if err := c.transport.SubmitStop(ctx); err != nil {
		c.logger.WithError(err).Error("could not stop engine")
		c.sink.Notify(fmt.Sprintf("Failed to stop engine: %v", err), notify.Error)
		return fmt.Errorf("stopping engine: %w", err)
	}

	c.setState(Stopped)

	c.logger.Info("engine stopped")
	c.sink.Notify("Engine stopped", notify.Success)
	c.publish()

	return nil
}

// ResetStats sets the engine counters to zero. On success the snapshot is
// zeroed immediately and polls in flight are discarded.
func (c *Controller) ResetStats(ctx context.Context) error {
	c.commands.Lock()
	defer c.commands.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	if err := c.transport.ResetStats(ctx); err != nil {
		c.logger.WithError(err).Error("could not reset stats")
		c.sink.Notify(fmt.Sprintf("Failed to reset stats: %v", err), notify.Error)
		return fmt.Errorf("resetting stats: %w", err)
	}

	c.sync.Replace(c.sync.Snapshot().Reset(c.clock.Now()))

	c.sink.Notify("Statistics reset", notify.Success)
	c.publish()

	return nil
}

// State implements Control's State method
func (c *Controller) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.state
}

// Snapshot implements Control's Snapshot method
func (c *Controller) Snapshot() stats.Snapshot {
	return c.sync.Snapshot()
}

// Desired implements Control's Desired method
func (c *Controller) Desired() impairment.Config {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.desired
}

// Polling returns true if the stats are being polled
func (c *Controller) Polling() bool {
	return c.sync.Active()
}

// Subscribe implements Control's Subscribe method. A subscriber that falls
// behind loses the oldest updates. The channel is closed on unsubscribe or
// when the controller is closed.
func (c *Controller) Subscribe() (<-chan Update, func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ch := make(chan Update, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextID
	c.nextID++
	c.subscribers[id] = ch

	return ch, func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()

		if sub, found := c.subscribers[id]; found {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// Close stops polling and releases subscribers. It does not stop the engine.
func (c *Controller) Close() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	c.mutex.Unlock()

	// must not hold the mutex: the polling goroutine may need it to finish
	c.sync.Close()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

func (c *Controller) isClosed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.closed
}

func (c *Controller) validate(config impairment.Config) error {
	if err := config.Validate(); err != nil {
		c.sink.Notify(fmt.Sprintf("Invalid configuration: %v", err), notify.Error)
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return nil
}

// setState changes the believed state and starts or halts polling accordingly
func (c *Controller) setState(state State) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.state = state
	if state == Running && !c.closed {
		c.sync.Start()
		return
	}

	if state == Stopped {
		c.sync.Halt()
	}
}

// onPoll is called by the synchronizer after applying a snapshot
func (c *Controller) onPoll(snapshot stats.Snapshot) {
	if !snapshot.Running {
		c.mutex.Lock()
		corrected := c.state == Running
		if corrected {
			c.state = Stopped
			c.sync.Halt()
		}
		c.mutex.Unlock()

		if corrected {
			c.logger.Warn("engine reports it is not running")
			c.sink.Notify("Engine reports it is no longer running", notify.Warning)
		}
	}

	c.publish()
}

func (c *Controller) publish() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	update := Update{State: c.state, Snapshot: c.sync.Snapshot()}
	for _, ch := range c.subscribers {
		select {
		case ch <- update:
		default:
			// drop the oldest update to make room
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- update:
			default:
			}
		}
	}
}

// compile time check
var _ Control = (*Controller)(nil)
