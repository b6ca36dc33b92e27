package commands

import (
	"context"
	"errors"
	"time"

	"github.com/impairlab/impairctl/pkg/controller"
	"github.com/impairlab/impairctl/pkg/engine"
	"github.com/impairlab/impairctl/pkg/notify"
	"github.com/impairlab/impairctl/pkg/runtime"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const attachBackoff = 250 * time.Millisecond

// session is a controller connected to the engine for the duration of a command
type session struct {
	controller *controller.Controller
	logger     logrus.FieldLogger
	options    *Options
}

// newSession creates the controller for a command. Notifications are written
// to the command's error output, or logged if the log format is json. At debug
// level they are also logged, in sequence with the engine requests.
func newSession(
	cmd *cobra.Command,
	env runtime.Environment,
	options *Options,
	pollInterval time.Duration,
) (*session, error) {
	logger := options.newLogger(cmd.ErrOrStderr())

	client, err := engine.NewClient(engine.ClientConfig{
		BaseURL: options.Engine,
		Timeout: options.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	var sink notify.Sink = notify.NewWriterSink(cmd.ErrOrStderr())
	switch {
	case options.LogFormat == "json":
		sink = notify.NewLogSink(logger)
	case logger.IsLevelEnabled(logrus.DebugLevel):
		sink = notify.Multi(sink, notify.NewLogSink(logger))
	}

	c, err := controller.New(client, sink, controller.Options{
		Clock:        env.Clock(),
		PollInterval: pollInterval,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	return &session{controller: c, logger: logger, options: options}, nil
}

// openSession creates the controller for a command and attaches it to the engine
func openSession(cmd *cobra.Command, env runtime.Environment, options *Options) (*session, error) {
	s, err := newSession(cmd, env, options, 0)
	if err != nil {
		return nil, err
	}

	if err := s.attach(cmd.Context()); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// attach attaches the controller to the engine. If a wait is set in the options,
// attaching is retried while the engine is not reachable.
func (s *session) attach(ctx context.Context) error {
	if s.options.Wait <= 0 {
		return s.controller.Attach(ctx)
	}

	return s.controller.AttachWait(ctx, s.options.Wait, attachBackoff)
}

// Close releases the controller. It does not stop the engine.
func (s *session) Close() {
	s.controller.Close()
}

// ignoreAlreadyInState makes commands that request the current state succeed.
// The controller already notified the user.
func ignoreAlreadyInState(err error) error {
	if errors.Is(err, controller.ErrAlreadyInState) {
		return nil
	}
	return err
}
