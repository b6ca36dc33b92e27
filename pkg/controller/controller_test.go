package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/impairlab/impairctl/pkg/engine"
	"github.com/impairlab/impairctl/pkg/impairment"
	"github.com/impairlab/impairctl/pkg/notify"
	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/impairlab/impairctl/pkg/stats"
	"github.com/sirupsen/logrus/hooks/test"
)

var epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	controller *Controller
	transport  *engine.FakeTransport
	clock      *runtime.FakeClock
	sink       *notify.Recorder
	updates    <-chan Update
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger, _ := test.NewNullLogger()
	transport := engine.NewFakeTransport()
	clock := runtime.NewFakeClock(epoch)
	sink := notify.NewRecorder()

	c, err := New(transport, sink, Options{Clock: clock, Logger: logger})
	if err != nil {
		t.Fatalf("creating controller: %v", err)
	}

	updates, _ := c.Subscribe()
	t.Cleanup(c.Close)

	return &fixture{
		controller: c,
		transport:  transport,
		clock:      clock,
		sink:       sink,
		updates:    updates,
	}
}

// waitFor waits for an update that satisfies the condition
func (f *fixture) waitFor(t *testing.T, condition func(Update) bool) Update {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case u := <-f.updates:
			if condition(u) {
				return u
			}
		case <-timeout:
			t.Fatalf("timeout waiting for update")
			return Update{}
		}
	}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()

	if err := f.controller.Start(context.Background(), impairment.Default()); err != nil {
		t.Fatalf("starting: %v", err)
	}
}

func timeoutError(op string) error {
	return &engine.TransportError{Op: op, Err: context.DeadlineExceeded}
}

func Test_Start(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		title         string
		config        func(*impairment.Config)
		startErr      error
		expectState   State
		expectPolling bool
		expectCalls   int
		expectError   error
		expectNotice  notify.Severity
	}{
		{
			title:         "confirmed start",
			expectState:   Running,
			expectPolling: true,
			expectCalls:   1,
			expectNotice:  notify.Success,
		},
		{
			title:        "transport failure",
			startErr:     timeoutError(engine.OpStart),
			expectState:  Stopped,
			expectCalls:  1,
			expectError:  &engine.TransportError{},
			expectNotice: notify.Error,
		},
		{
			title:        "rejected by engine",
			startErr:     &engine.ProtocolError{Op: engine.OpStart, StatusCode: 500, Message: "Failed to start engine"},
			expectState:  Stopped,
			expectCalls:  1,
			expectError:  &engine.ProtocolError{},
			expectNotice: notify.Error,
		},
		{
			title:        "invalid config",
			config:       func(c *impairment.Config) { c.Drop.Chance = 120 },
			expectState:  Stopped,
			expectCalls:  0,
			expectError:  ErrConfigInvalid,
			expectNotice: notify.Error,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.title, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.transport.SetError(engine.OpStart, tc.startErr)

			config := impairment.Default()
			if tc.config != nil {
				tc.config(&config)
			}

			err := f.controller.Start(context.Background(), config)

			switch expected := tc.expectError.(type) {
			case nil:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			case *engine.TransportError:
				if !engine.IsTransportError(err) {
					t.Fatalf("expected transport error got %v", err)
				}
			case *engine.ProtocolError:
				if !engine.IsProtocolError(err) {
					t.Fatalf("expected protocol error got %v", err)
				}
			default:
				if !errors.Is(err, expected) {
					t.Fatalf("expected %v got %v", expected, err)
				}
			}

			if state := f.controller.State(); state != tc.expectState {
				t.Errorf("expected state %s got %s", tc.expectState, state)
			}

			if polling := f.controller.Polling(); polling != tc.expectPolling {
				t.Errorf("expected polling %t got %t", tc.expectPolling, polling)
			}

			if calls := f.transport.Invocations(engine.OpStart); calls != tc.expectCalls {
				t.Errorf("expected %d start calls got %d", tc.expectCalls, calls)
			}

			last, _ := f.sink.Last()
			if last.Severity != tc.expectNotice {
				t.Errorf("expected %s notification got %v", tc.expectNotice, last)
			}
		})
	}
}

func Test_InvalidConfigIdentifiesField(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	config := impairment.Default()
	config.Throttle.DurationMs = -5

	err := f.controller.Start(context.Background(), config)

	var rangeErr *impairment.OutOfRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected OutOfRangeError got %v", err)
	}

	if rangeErr.Field != "throttle.duration_ms" {
		t.Fatalf("unexpected field %q", rangeErr.Field)
	}

	if len(f.transport.Calls()) != 0 {
		t.Fatalf("invalid config should not reach the engine: %v", f.transport.Calls())
	}
}

func Test_AlreadyInState(t *testing.T) {
	t.Parallel()

	t.Run("start while running", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.start(t)
		f.transport.Reset()

		err := f.controller.Start(context.Background(), impairment.Default())
		if !errors.Is(err, ErrAlreadyInState) {
			t.Fatalf("expected ErrAlreadyInState got %v", err)
		}

		var transition *InvalidTransition
		if !errors.As(err, &transition) || transition.Command != "start" || transition.State != Running {
			t.Fatalf("unexpected transition error %v", err)
		}

		if calls := f.transport.Calls(); len(calls) != 0 {
			t.Fatalf("expected no transport calls got %v", calls)
		}

		if f.controller.State() != Running {
			t.Fatalf("state should not change")
		}
	})

	t.Run("stop while stopped", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		err := f.controller.Stop(context.Background())
		if !errors.Is(err, ErrAlreadyInState) {
			t.Fatalf("expected ErrAlreadyInState got %v", err)
		}

		if calls := f.transport.Calls(); len(calls) != 0 {
			t.Fatalf("expected no transport calls got %v", calls)
		}

		last, _ := f.sink.Last()
		if last.Severity != notify.Info {
			t.Fatalf("expected info notification got %v", last)
		}
	})
}

func Test_Stop(t *testing.T) {
	t.Parallel()

	t.Run("confirmed stop halts polling", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.start(t)

		if err := f.controller.Stop(context.Background()); err != nil {
			t.Fatalf("stopping: %v", err)
		}

		if f.controller.State() != Stopped {
			t.Fatalf("expected state stopped got %s", f.controller.State())
		}

		if f.controller.Polling() {
			t.Fatalf("polling should be halted")
		}

		// ticks after the stop must not trigger polls
		for i := 0; i < 3; i++ {
			f.clock.Tick()
		}

		if polls := f.transport.Invocations(engine.OpFetchStats); polls != 0 {
			t.Fatalf("expected no polls after stop got %d", polls)
		}

		last, _ := f.sink.Last()
		if last.Severity != notify.Success {
			t.Fatalf("expected success notification got %v", last)
		}
	})

	t.Run("timeout keeps running and polling", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.start(t)
		f.transport.SetError(engine.OpStop, timeoutError(engine.OpStop))

		err := f.controller.Stop(context.Background())

		var te *engine.TransportError
		if !errors.As(err, &te) || !te.Timeout() {
			t.Fatalf("expected timeout got %v", err)
		}

		if f.controller.State() != Running {
			t.Fatalf("expected state running got %s", f.controller.State())
		}

		if f.sink.Count(notify.Error) != 1 {
			t.Fatalf("expected an error notification got %v", f.sink.Notifications())
		}

		f.transport.SetStats(stats.Snapshot{Processed: 7})
		f.clock.Tick()

		f.waitFor(t, func(u Update) bool { return u.Snapshot.Processed == 7 })

		if !f.controller.Polling() {
			t.Fatalf("polling should continue")
		}
	})
}

func Test_LatePollIsDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.start(t)
	f.transport.SetStats(stats.Snapshot{Processed: 42, Dropped: 4})

	inFlight := make(chan struct{})
	release := make(chan struct{})
	once := sync.Once{}
	f.transport.SetHook(engine.OpFetchStats, func(context.Context) {
		once.Do(func() {
			close(inFlight)
			<-release
		})
	})

	f.clock.Tick()
	<-inFlight

	if err := f.controller.Stop(context.Background()); err != nil {
		t.Fatalf("stopping: %v", err)
	}

	close(release)
	// waits for the in flight poll to complete
	f.controller.Close()

	if f.controller.State() != Stopped {
		t.Fatalf("late poll changed state to %s", f.controller.State())
	}

	if diff := cmp.Diff(stats.Snapshot{}, f.controller.Snapshot()); diff != "" {
		t.Fatalf("late snapshot was applied:\n%s", diff)
	}
}

func Test_ResetStats(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.start(t)

	f.transport.SetStats(stats.Snapshot{
		Processed:  10,
		Dropped:    2,
		Delayed:    3,
		Duplicated: 4,
		Tampered:   5,
		OutOfOrder: 6,
		QueueSize:  7,
	})
	f.clock.Tick()
	f.waitFor(t, func(u Update) bool { return u.Snapshot.Processed == 10 })

	f.clock.Advance(time.Second)

	if err := f.controller.ResetStats(context.Background()); err != nil {
		t.Fatalf("resetting stats: %v", err)
	}

	expected := stats.Snapshot{Running: true, At: epoch.Add(time.Second)}
	if diff := cmp.Diff(expected, f.controller.Snapshot()); diff != "" {
		t.Fatalf("snapshot was not reset:\n%s", diff)
	}

	f.waitFor(t, func(u Update) bool { return cmp.Equal(u.Snapshot, expected) })

	t.Run("failure keeps snapshot", func(t *testing.T) {
		f.transport.SetError(engine.OpResetStats, timeoutError(engine.OpResetStats))

		if err := f.controller.ResetStats(context.Background()); !engine.IsTransportError(err) {
			t.Fatalf("expected transport error got %v", err)
		}

		if diff := cmp.Diff(expected, f.controller.Snapshot()); diff != "" {
			t.Fatalf("snapshot changed:\n%s", diff)
		}
	})
}

func Test_PollFailureKeepsBelief(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.start(t)

	f.transport.SetStats(stats.Snapshot{Processed: 3})
	f.clock.Tick()
	f.waitFor(t, func(u Update) bool { return u.Snapshot.Processed == 3 })

	f.transport.SetError(engine.OpFetchStats, timeoutError(engine.OpFetchStats))
	f.clock.Tick()
	// received only when the failed poll completed
	f.clock.Tick()

	if f.controller.State() != Running {
		t.Fatalf("failed poll changed state to %s", f.controller.State())
	}

	if f.controller.Snapshot().Processed != 3 {
		t.Fatalf("failed poll changed snapshot: %v", f.controller.Snapshot())
	}

	if f.sink.Count(notify.Warning) == 0 {
		t.Fatalf("poll failure was not reported")
	}

	f.transport.SetError(engine.OpFetchStats, nil)
	f.transport.SetStats(stats.Snapshot{Processed: 9})
	f.clock.Tick()
	f.waitFor(t, func(u Update) bool { return u.Snapshot.Processed == 9 })
}

func Test_PollReportsEngineStopped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.start(t)

	// engine stopped by other means
	f.transport.SetRunning(false)
	f.clock.Tick()

	f.waitFor(t, func(u Update) bool { return u.State == Stopped })

	if f.controller.Polling() {
		t.Fatalf("polling should be halted")
	}

	if f.sink.Count(notify.Warning) != 1 {
		t.Fatalf("expected a warning got %v", f.sink.Notifications())
	}
}

func Test_Attach(t *testing.T) {
	t.Parallel()

	t.Run("engine already running", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		config := impairment.Default()
		config.Filter = "inbound"
		config.Tamper.Enabled = true
		_ = f.transport.SubmitStart(context.Background(), config)
		f.transport.SetStats(stats.Snapshot{Processed: 100})
		f.transport.Reset()

		if err := f.controller.Attach(context.Background()); err != nil {
			t.Fatalf("attaching: %v", err)
		}

		if f.controller.State() != Running {
			t.Fatalf("expected state running got %s", f.controller.State())
		}

		if !f.controller.Polling() {
			t.Fatalf("polling should start when attaching to a running engine")
		}

		if diff := cmp.Diff(config, f.controller.Desired()); diff != "" {
			t.Fatalf("desired config was not loaded:\n%s", diff)
		}

		expected := stats.Snapshot{Processed: 100, Running: true, At: epoch}
		if diff := cmp.Diff(expected, f.controller.Snapshot()); diff != "" {
			t.Fatalf("unexpected snapshot:\n%s", diff)
		}

		err := f.controller.Start(context.Background(), config)
		if !errors.Is(err, ErrAlreadyInState) {
			t.Fatalf("expected ErrAlreadyInState got %v", err)
		}

		if f.transport.Invocations(engine.OpStart) != 0 {
			t.Fatalf("start should not be sent to a running engine")
		}
	})

	t.Run("engine stopped", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		if err := f.controller.Attach(context.Background()); err != nil {
			t.Fatalf("attaching: %v", err)
		}

		if f.controller.State() != Stopped || f.controller.Polling() {
			t.Fatalf("expected stopped without polling")
		}
	})

	t.Run("engine unreachable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.transport.SetRunning(true)
		f.transport.SetError(engine.OpFetchStats, &engine.TransportError{Op: engine.OpFetchStats, Err: errors.New("refused")})

		err := f.controller.Attach(context.Background())
		if !engine.IsTransportError(err) {
			t.Fatalf("expected transport error got %v", err)
		}

		if f.controller.State() != Stopped {
			t.Fatalf("belief should not change without a successful read")
		}

		if f.sink.Count(notify.Error) != 1 {
			t.Fatalf("expected error notification got %v", f.sink.Notifications())
		}
	})

	t.Run("config unavailable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.transport.SetRunning(true)
		f.transport.SetError(engine.OpFetchConfig, &engine.ProtocolError{Op: engine.OpFetchConfig, StatusCode: 500})

		if err := f.controller.Attach(context.Background()); err != nil {
			t.Fatalf("attaching: %v", err)
		}

		if f.controller.State() != Running {
			t.Fatalf("expected state running got %s", f.controller.State())
		}

		if diff := cmp.Diff(impairment.Default(), f.controller.Desired()); diff != "" {
			t.Fatalf("desired config should keep defaults:\n%s", diff)
		}

		if f.sink.Count(notify.Warning) != 1 {
			t.Fatalf("expected warning got %v", f.sink.Notifications())
		}
	})
}

func Test_AttachWait(t *testing.T) {
	t.Parallel()

	refused := &engine.TransportError{Op: engine.OpFetchStats, Err: errors.New("refused")}

	t.Run("engine becomes reachable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.transport.SetRunning(true)
		f.transport.SetError(engine.OpFetchConfig, &engine.TransportError{Op: engine.OpFetchConfig, Err: errors.New("refused")})
		f.transport.SetError(engine.OpFetchStats, refused)

		attempts := 0
		f.transport.SetHook(engine.OpFetchStats, func(context.Context) {
			attempts++
			if attempts == 3 {
				f.transport.SetError(engine.OpFetchConfig, nil)
				f.transport.SetError(engine.OpFetchStats, nil)
			}
		})

		err := f.controller.AttachWait(context.Background(), 5*time.Second, 10*time.Millisecond)
		if err != nil {
			t.Fatalf("attaching: %v", err)
		}

		if f.controller.State() != Running {
			t.Fatalf("expected state running got %s", f.controller.State())
		}

		expected := []notify.Notification{{Message: "Attached to engine (running)", Severity: notify.Info}}
		if diff := cmp.Diff(expected, f.sink.Notifications()); diff != "" {
			t.Fatalf("failed attempts should not be notified:\n%s", diff)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.transport.SetError(engine.OpFetchConfig, &engine.TransportError{Op: engine.OpFetchConfig, Err: errors.New("refused")})
		f.transport.SetError(engine.OpFetchStats, refused)

		err := f.controller.AttachWait(context.Background(), 100*time.Millisecond, 10*time.Millisecond)
		if !engine.IsTransportError(err) {
			t.Fatalf("expected transport error got %v", err)
		}

		if f.transport.Invocations(engine.OpFetchStats) < 2 {
			t.Fatalf("expected several attempts got %d", f.transport.Invocations(engine.OpFetchStats))
		}

		if len(f.sink.Notifications()) != 1 || f.sink.Count(notify.Error) != 1 {
			t.Fatalf("expected a single error notification got %v", f.sink.Notifications())
		}
	})

	t.Run("engine rejects", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.transport.SetError(engine.OpFetchStats, &engine.ProtocolError{Op: engine.OpFetchStats, StatusCode: 500})

		err := f.controller.AttachWait(context.Background(), 5*time.Second, 10*time.Millisecond)
		if !engine.IsProtocolError(err) {
			t.Fatalf("expected protocol error got %v", err)
		}

		if f.transport.Invocations(engine.OpFetchStats) != 1 {
			t.Fatalf("rejections should not be retried")
		}

		if f.sink.Count(notify.Error) != 1 {
			t.Fatalf("expected one error notification got %v", f.sink.Notifications())
		}
	})
}

func Test_SubmitConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	config := impairment.Default()
	config.Lag = impairment.Lag{Enabled: true, DelayMs: 250}

	if err := f.controller.SubmitConfig(ctx, config); err != nil {
		t.Fatalf("submitting config: %v", err)
	}

	if diff := cmp.Diff(config, f.transport.Config()); diff != "" {
		t.Fatalf("engine config does not match:\n%s", diff)
	}

	if diff := cmp.Diff(config, f.controller.Desired()); diff != "" {
		t.Fatalf("desired config does not match:\n%s", diff)
	}

	invalid := config
	invalid.Duplicate.Enabled = true
	invalid.Duplicate.Count = 0
	if err := f.controller.SubmitConfig(ctx, invalid); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid got %v", err)
	}

	f.start(t)
	f.transport.Reset()

	if err := f.controller.SubmitConfig(ctx, config); !errors.Is(err, ErrConfigLocked) {
		t.Fatalf("expected ErrConfigLocked got %v", err)
	}

	if len(f.transport.Calls()) != 0 {
		t.Fatalf("config should not be sent while running")
	}
}

func Test_Scenarios(t *testing.T) {
	t.Parallel()

	t.Run("drop scenario", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		config := impairment.Default()
		config.Filter = "outbound and udp"
		config.Drop = impairment.Drop{Enabled: true, Chance: 25}
		config.Lag.Enabled = false

		if err := f.controller.Start(context.Background(), config); err != nil {
			t.Fatalf("starting: %v", err)
		}

		if f.controller.State() != Running {
			t.Fatalf("expected state running got %s", f.controller.State())
		}

		f.transport.SetStats(stats.Snapshot{Processed: 10, Dropped: 2, QueueSize: 1})
		f.clock.Tick()

		update := f.waitFor(t, func(u Update) bool { return u.Snapshot.Processed != 0 })

		expected := stats.Snapshot{Processed: 10, Dropped: 2, QueueSize: 1, Running: true, At: epoch}
		if diff := cmp.Diff(expected, update.Snapshot); diff != "" {
			t.Fatalf("snapshot does not match:\n%s", diff)
		}

		if diff := cmp.Diff(expected, f.controller.Snapshot()); diff != "" {
			t.Fatalf("snapshot does not match:\n%s", diff)
		}
	})

	t.Run("stop timeout scenario", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.start(t)
		f.transport.SetError(engine.OpStop, timeoutError(engine.OpStop))

		if err := f.controller.Stop(context.Background()); err == nil {
			t.Fatalf("expected error")
		}

		if f.controller.State() != Running {
			t.Fatalf("expected state running got %s", f.controller.State())
		}

		for i := 1; i <= 3; i++ {
			f.clock.Tick()
		}
		f.controller.Close()

		if polls := f.transport.Invocations(engine.OpFetchStats); polls < 2 {
			t.Fatalf("expected poll loop to keep ticking got %d polls", polls)
		}
	})
}

func Test_SubscriptionsAndClose(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	updates, unsubscribe := f.controller.Subscribe()

	f.start(t)

	select {
	case u := <-updates:
		if u.State != Running {
			t.Fatalf("expected running update got %v", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no update received")
	}

	unsubscribe()
	unsubscribe()
	for range updates {
		// returns once the channel is closed
	}

	f.controller.Close()
	f.controller.Close()

	for range f.updates {
		// drain until closed
	}

	if f.clock.Tickers() != 0 {
		t.Fatalf("polling ticker was not stopped")
	}

	if err := f.controller.Stop(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed got %v", err)
	}

	if f.controller.State() != Running {
		t.Fatalf("close should not change the belief")
	}

	closed, _ := f.controller.Subscribe()
	if _, open := <-closed; open {
		t.Fatalf("subscription after close should be closed")
	}
}
