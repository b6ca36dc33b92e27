// Package impairment defines the configuration of the impairment mechanisms
// applied by the engine to the packets that match a filter.
package impairment

import (
	"fmt"
	"strings"
)

// DefaultFilter is the filter used when none is given
const DefaultFilter = "outbound and udp"

// Lag delays every matching packet
type Lag struct {
	Enabled bool `yaml:"enabled"`
	// Delay in milliseconds added to each packet
	DelayMs int `yaml:"delay_ms"`
}

// Drop discards packets
type Drop struct {
	Enabled bool `yaml:"enabled"`
	// Percentage (in the range 0 to 100) of packets dropped
	Chance float64 `yaml:"chance"`
}

// Throttle holds packets back for a period
type Throttle struct {
	Enabled    bool    `yaml:"enabled"`
	DurationMs int     `yaml:"duration_ms"`
	Chance     float64 `yaml:"chance"`
}

// Duplicate sends extra copies of packets
type Duplicate struct {
	Enabled bool `yaml:"enabled"`
	// Number of copies sent for a selected packet
	Count  int     `yaml:"count"`
	Chance float64 `yaml:"chance"`
}

// Reorder delivers packets out of order
type Reorder struct {
	Enabled bool    `yaml:"enabled"`
	Chance  float64 `yaml:"chance"`
	// Number of packets held back and released in random order
	QueueSize int `yaml:"queue_size"`
}

// Tamper corrupts the payload of packets
type Tamper struct {
	Enabled bool    `yaml:"enabled"`
	Chance  float64 `yaml:"chance"`
}

// Config is the complete impairment policy submitted to the engine on start.
// The parameters of a disabled mechanism are kept but have no effect.
type Config struct {
	Filter    string    `yaml:"filter"`
	Lag       Lag       `yaml:"lag"`
	Drop      Drop      `yaml:"drop"`
	Throttle  Throttle  `yaml:"throttle"`
	Duplicate Duplicate `yaml:"duplicate"`
	Reorder   Reorder   `yaml:"reorder"`
	Tamper    Tamper    `yaml:"tamper"`
}

// Default returns the configuration the engine starts with: every mechanism
// disabled with its default parameters.
func Default() Config {
	return Config{
		Filter:    DefaultFilter,
		Lag:       Lag{DelayMs: 100},
		Drop:      Drop{Chance: 5},
		Throttle:  Throttle{DurationMs: 10, Chance: 50},
		Duplicate: Duplicate{Count: 1, Chance: 10},
		Reorder:   Reorder{Chance: 20, QueueSize: 5},
		Tamper:    Tamper{Chance: 5},
	}
}

// OutOfRangeError is returned when a parameter is outside its valid range
type OutOfRangeError struct {
	// Field is the path of the offending field, e.g. "drop.chance"
	Field string
	Value float64
	Min   float64
	// Max is only meaningful if HasMax is true
	Max    float64
	HasMax bool
}

func (e *OutOfRangeError) Error() string {
	if e.HasMax {
		return fmt.Sprintf("%s must be in the range [%g, %g]: %g", e.Field, e.Min, e.Max, e.Value)
	}
	return fmt.Sprintf("%s must be at least %g: %g", e.Field, e.Min, e.Value)
}

func checkPercent(field string, value float64) error {
	// the negated form also rejects NaN
	if !(value >= 0 && value <= 100) {
		return &OutOfRangeError{Field: field, Value: value, Min: 0, Max: 100, HasMax: true}
	}
	return nil
}

func checkMin(field string, value int, min int) error {
	if value < min {
		return &OutOfRangeError{Field: field, Value: float64(value), Min: float64(min)}
	}
	return nil
}

// Validate checks every parameter, including those of disabled mechanisms,
// and returns an *OutOfRangeError for the first one out of range.
func (c Config) Validate() error {
	duplicateMin := 0
	if c.Duplicate.Enabled {
		duplicateMin = 1
	}

	queueMin := 0
	if c.Reorder.Enabled {
		queueMin = 1
	}

	checks := []error{
		checkMin("lag.delay_ms", c.Lag.DelayMs, 0),
		checkPercent("drop.chance", c.Drop.Chance),
		checkMin("throttle.duration_ms", c.Throttle.DurationMs, 0),
		checkPercent("throttle.chance", c.Throttle.Chance),
		checkMin("duplicate.count", c.Duplicate.Count, duplicateMin),
		checkPercent("duplicate.chance", c.Duplicate.Chance),
		checkPercent("reorder.chance", c.Reorder.Chance),
		checkMin("reorder.queue_size", c.Reorder.QueueSize, queueMin),
		checkPercent("tamper.chance", c.Tamper.Chance),
	}

	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	return nil
}

// Summary returns a human readable description of the configuration, one
// mechanism per line.
func (c Config) Summary() string {
	disabled := "Disabled"
	lines := []struct {
		name  string
		value string
	}{
		{"Filter", c.Filter},
		{"Lag", disabled},
		{"Drop", disabled},
		{"Throttle", disabled},
		{"Duplicate", disabled},
		{"Out-of-Order", disabled},
		{"Tamper", disabled},
	}

	if c.Lag.Enabled {
		lines[1].value = fmt.Sprintf("%dms", c.Lag.DelayMs)
	}
	if c.Drop.Enabled {
		lines[2].value = fmt.Sprintf("%g%%", c.Drop.Chance)
	}
	if c.Throttle.Enabled {
		lines[3].value = fmt.Sprintf("%dms (%g%%)", c.Throttle.DurationMs, c.Throttle.Chance)
	}
	if c.Duplicate.Enabled {
		lines[4].value = fmt.Sprintf("x%d (%g%%)", c.Duplicate.Count, c.Duplicate.Chance)
	}
	if c.Reorder.Enabled {
		lines[5].value = fmt.Sprintf("%g%% (queue %d)", c.Reorder.Chance, c.Reorder.QueueSize)
	}
	if c.Tamper.Enabled {
		lines[6].value = fmt.Sprintf("%g%%", c.Tamper.Chance)
	}

	sb := strings.Builder{}
	for _, l := range lines {
		fmt.Fprintf(&sb, "%-13s %s\n", l.name+":", l.value)
	}

	return sb.String()
}
