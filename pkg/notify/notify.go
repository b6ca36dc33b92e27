// Package notify defines how the controller reports user relevant outcomes
// (commands succeeding or failing, transport errors) to the presentation layer.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Severity classifies a notification
type Severity int

// Severities of notifications
const (
	Info Severity = iota
	Success
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Sink receives human readable notifications
type Sink interface {
	Notify(message string, severity Severity)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(message string, severity Severity)

// Notify calls f(message, severity)
func (f SinkFunc) Notify(message string, severity Severity) {
	f(message, severity)
}

// Discard is a Sink that ignores all notifications
var Discard Sink = SinkFunc(func(string, Severity) {})

// LogSink forwards notifications to a logger, mapping severities to log levels
type LogSink struct {
	Logger logrus.FieldLogger
}

// NewLogSink returns a LogSink. If logger is nil the standard logger is used.
func NewLogSink(logger logrus.FieldLogger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &LogSink{Logger: logger}
}

// Notify implements the Sink interface
func (s *LogSink) Notify(message string, severity Severity) {
	entry := s.Logger.WithField("severity", severity.String())
	switch severity {
	case Error:
		entry.Error(message)
	case Warning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}

// WriterSink writes one line per notification
type WriterSink struct {
	mutex sync.Mutex
	out   io.Writer
}

// NewWriterSink returns a WriterSink that writes to out
func NewWriterSink(out io.Writer) *WriterSink {
	return &WriterSink{out: out}
}

var symbols = map[Severity]string{
	Info:    "i",
	Success: "✓",
	Warning: "!",
	Error:   "✗",
}

// Notify implements the Sink interface
func (s *WriterSink) Notify(message string, severity Severity) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// nothing to do if the output fails
	_, _ = fmt.Fprintf(s.out, "%s %s\n", symbols[severity], message)
}

// Multi returns a Sink that forwards notifications to all the given sinks
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(message string, severity Severity) {
		for _, s := range sinks {
			s.Notify(message, severity)
		}
	})
}
