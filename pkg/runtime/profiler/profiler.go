// Package profiler collects profiling data of the process using go's built-in
// profiling tools while a command runs
package profiler

import (
	"errors"
	"io"
)

// Config is the configuration of the profiler
type Config struct {
	CPU    CPUConfig
	Memory MemoryConfig
	Trace  TraceConfig
}

// Probe collects one kind of profiling data until the returned Closer is closed
type Probe interface {
	Start() (io.Closer, error)
}

// Session keeps the probes started by Start
type Session struct {
	closers []io.Closer
}

// Start starts the probes enabled in the configuration. If any probe fails to
// start, the probes already started are closed.
func Start(config Config) (*Session, error) {
	probes, err := buildProbes(config)
	if err != nil {
		return nil, err
	}

	s := &Session{}
	for _, probe := range probes {
		closer, err := probe.Start()
		if err != nil {
			_ = s.Close()
			return nil, err
		}

		s.closers = append(s.closers, closer)
	}

	return s, nil
}

// Probes returns the number of probes running
func (s *Session) Probes() int {
	return len(s.closers)
}

// Close stops the probes and writes their data to the output files
func (s *Session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil

	return errors.Join(errs...)
}

func buildProbes(config Config) ([]Probe, error) {
	probes := []Probe{}

	if config.CPU.Enabled {
		probe, err := NewCPUProbe(config.CPU)
		if err != nil {
			return nil, err
		}
		probes = append(probes, probe)
	}

	if config.Memory.Enabled {
		probe, err := NewMemoryProbe(config.Memory)
		if err != nil {
			return nil, err
		}
		probes = append(probes, probe)
	}

	if config.Trace.Enabled {
		probe, err := NewTraceProbe(config.Trace)
		if err != nil {
			return nil, err
		}
		probes = append(probes, probe)
	}

	return probes, nil
}
