package profiler

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
)

// MemoryConfig defines the configuration of a memory profiling probe
type MemoryConfig struct {
	Enabled  bool
	FileName string
	// Rate sets runtime.MemProfileRate. Zero keeps the default rate.
	Rate int
}

type memoryProbe struct {
	config MemoryConfig
	file   *os.File
}

// NewMemoryProbe creates a memory profiling probe. The heap profile is
// written when the probe is closed.
func NewMemoryProbe(config MemoryConfig) (Probe, error) {
	if config.Rate < 0 {
		return nil, fmt.Errorf("memory rate must be non-negative: %d", config.Rate)
	}

	if config.FileName == "" {
		return nil, fmt.Errorf("memory profile file name cannot be empty")
	}

	return &memoryProbe{config: config}, nil
}

func (m *memoryProbe) Start() (io.Closer, error) {
	var err error

	m.file, err = os.Create(m.config.FileName)
	if err != nil {
		return nil, fmt.Errorf("creating memory profile file %q: %w", m.config.FileName, err)
	}

	if m.config.Rate > 0 {
		runtime.MemProfileRate = m.config.Rate
	}

	return m, nil
}

func (m *memoryProbe) Close() error {
	defer m.file.Close()

	if err := pprof.Lookup("heap").WriteTo(m.file, 0); err != nil {
		return fmt.Errorf("writing memory profile to %q: %w", m.config.FileName, err)
	}

	return nil
}
