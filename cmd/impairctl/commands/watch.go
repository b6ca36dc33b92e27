package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/impairlab/impairctl/pkg/controller"
	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/impairlab/impairctl/pkg/stats"
	"github.com/impairlab/impairctl/pkg/utils"
	"github.com/spf13/cobra"
)

// ErrNotRunning is returned by watch if the engine is not running
var ErrNotRunning = errors.New("engine is not running")

// BuildWatchCmd builds the command that prints the engine statistics periodically
// until interrupted or the engine stops
func BuildWatchCmd(env runtime.Environment, options *Options) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "print the engine statistics periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("interval must be positive: %s", interval)
			}

			start := env.Clock().Now()
			ctx, cancel := runtime.WithSignals(cmd.Context(), env.Signal(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			s, err := newSession(cmd, env, options, interval)
			if err != nil {
				return err
			}
			defer s.Close()

			// subscribe before attaching to receive the snapshot read when attaching
			updates, unsubscribe := s.controller.Subscribe()
			defer unsubscribe()

			if err := s.attach(ctx); err != nil {
				return err
			}

			if s.controller.State() != controller.Running {
				return ErrNotRunning
			}

			w := watcher{out: cmd.OutOrStdout(), start: start}

			return w.watch(ctx, updates)
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", stats.DefaultPeriod, "polling interval")

	return cmd
}

type watcher struct {
	out   io.Writer
	start time.Time
}

func (w watcher) print(snapshot stats.Snapshot) {
	fmt.Fprintf(w.out, "[%s] %s\n", utils.DurationSeconds(snapshot.At.Sub(w.start)), snapshot)
}

// watch prints updates until the engine stops or the context is done.
// Updates pending when the context is done are printed before returning.
func (w watcher) watch(ctx context.Context, updates <-chan controller.Update) error {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if done := w.handle(update); done {
				return nil
			}
		case <-ctx.Done():
			w.drain(updates)

			var signalErr *runtime.SignalError
			if errors.As(context.Cause(ctx), &signalErr) {
				return nil
			}
			return ctx.Err()
		}
	}
}

func (w watcher) drain(updates <-chan controller.Update) {
	for {
		select {
		case update, ok := <-updates:
			if !ok || w.handle(update) {
				return
			}
		default:
			return
		}
	}
}

// handle prints an update and returns true if the engine stopped
func (w watcher) handle(update controller.Update) bool {
	if update.State != controller.Running {
		fmt.Fprintln(w.out, "engine stopped")
		return true
	}

	w.print(update.Snapshot)
	return false
}
