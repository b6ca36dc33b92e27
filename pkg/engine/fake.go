package engine

import (
	"context"
	"sync"

	"github.com/impairlab/impairctl/pkg/impairment"
	"github.com/impairlab/impairctl/pkg/stats"
)

// Hook is invoked by FakeTransport before executing an operation.
// It can block to simulate a request in flight.
type Hook func(ctx context.Context)

// FakeTransport is a Transport that simulates an engine in memory and keeps
// the history of invocations for inspection.
// Errors and hooks can be set per operation. An operation that returns an
// error does not change the state of the simulated engine.
type FakeTransport struct {
	mutex   sync.Mutex
	config  impairment.Config
	running bool
	stats   stats.Snapshot
	errs    map[string]error
	hooks   map[string]Hook
	calls   []string
}

// NewFakeTransport returns a FakeTransport simulating a stopped engine with
// the default configuration
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		config: impairment.Default(),
		errs:   map[string]error{},
		hooks:  map[string]Hook{},
	}
}

// SetError sets the error returned by an operation. A nil error clears it.
func (f *FakeTransport) SetError(op string, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.errs[op] = err
}

// SetHook sets the hook invoked before an operation. A nil hook clears it.
func (f *FakeTransport) SetHook(op string, hook Hook) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.hooks[op] = hook
}

// SetStats sets the counters returned by FetchStats. The run flag is
// always the one of the simulated engine.
func (f *FakeTransport) SetStats(s stats.Snapshot) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.stats = s
}

// SetRunning sets the run state of the simulated engine
func (f *FakeTransport) SetRunning(running bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.running = running
}

// Running returns the run state of the simulated engine
func (f *FakeTransport) Running() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.running
}

// Config returns the configuration of the simulated engine
func (f *FakeTransport) Config() impairment.Config {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.config
}

// Calls returns the history of operations invoked
func (f *FakeTransport) Calls() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	out := make([]string, len(f.calls))
	copy(out, f.calls)

	return out
}

// Invocations returns the number of times the operation was invoked
func (f *FakeTransport) Invocations(op string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	count := 0
	for _, c := range f.calls {
		if c == op {
			count++
		}
	}

	return count
}

// Reset clears the history of invocations
func (f *FakeTransport) Reset() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls = nil
}

// invoke records the call, runs the hook without holding the lock and
// returns the error set for the operation, if any
func (f *FakeTransport) invoke(ctx context.Context, op string) error {
	f.mutex.Lock()
	f.calls = append(f.calls, op)
	hook := f.hooks[op]
	f.mutex.Unlock()

	if hook != nil {
		hook(ctx)
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.errs[op]
}

// FetchConfig implements Transport's FetchConfig method
func (f *FakeTransport) FetchConfig(ctx context.Context) (impairment.Config, error) {
	if err := f.invoke(ctx, OpFetchConfig); err != nil {
		return impairment.Config{}, err
	}

	return f.Config(), nil
}

// SubmitConfig implements Transport's SubmitConfig method
func (f *FakeTransport) SubmitConfig(ctx context.Context, config impairment.Config) error {
	if err := f.invoke(ctx, OpSubmitConfig); err != nil {
		return err
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.config = config

	return nil
}

// SubmitStart implements Transport's SubmitStart method
func (f *FakeTransport) SubmitStart(ctx context.Context, config impairment.Config) error {
	if err := f.invoke(ctx, OpStart); err != nil {
		return err
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.config = config
	f.running = true

	return nil
}

// SubmitStop implements Transport's SubmitStop method
func (f *FakeTransport) SubmitStop(ctx context.Context) error {
	if err := f.invoke(ctx, OpStop); err != nil {
		return err
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.running = false

	return nil
}

// FetchStats implements Transport's FetchStats method
func (f *FakeTransport) FetchStats(ctx context.Context) (stats.Snapshot, error) {
	if err := f.invoke(ctx, OpFetchStats); err != nil {
		return stats.Snapshot{}, err
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	s := f.stats
	s.Running = f.running

	return s, nil
}

// ResetStats implements Transport's ResetStats method
func (f *FakeTransport) ResetStats(ctx context.Context) error {
	if err := f.invoke(ctx, OpResetStats); err != nil {
		return err
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.stats = stats.Snapshot{}

	return nil
}

// compile time check
var _ Transport = (*FakeTransport)(nil)
