package commands

import (
	"fmt"

	"github.com/impairlab/impairctl/pkg/impairment"
	"github.com/spf13/pflag"
)

// mechanismFlags builds an impairment configuration from a base configuration,
// an optional profile and the flags given in the command line.
// Setting a parameter of a mechanism enables it.
type mechanismFlags struct {
	profile         string
	preset          string
	filter          string
	lagMs           int
	dropChance      float64
	throttleMs      int
	throttleChance  float64
	duplicateCount  int
	duplicateChance float64
	reorderChance   float64
	reorderQueue    int
	tamperChance    float64
	disable         []string
}

func (m *mechanismFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&m.profile, "profile", "", "YAML file with the impairment configuration")
	flags.StringVar(&m.preset, "preset", "", "built-in impairment configuration (see the presets command)")
	flags.StringVar(&m.filter, "filter", impairment.DefaultFilter, "filter selecting the packets to impair")
	flags.IntVar(&m.lagMs, "lag-ms", 0, "delay added to each packet in milliseconds")
	flags.Float64Var(&m.dropChance, "drop-chance", 0, "percentage of packets dropped")
	flags.IntVar(&m.throttleMs, "throttle-ms", 0, "duration packets are held back in milliseconds")
	flags.Float64Var(&m.throttleChance, "throttle-chance", 0, "percentage of packets throttled")
	flags.IntVar(&m.duplicateCount, "duplicate-count", 0, "number of copies sent of a duplicated packet")
	flags.Float64Var(&m.duplicateChance, "duplicate-chance", 0, "percentage of packets duplicated")
	flags.Float64Var(&m.reorderChance, "reorder-chance", 0, "percentage of packets delivered out of order")
	flags.IntVar(&m.reorderQueue, "reorder-queue-size", 0, "number of packets held back to be reordered")
	flags.Float64Var(&m.tamperChance, "tamper-chance", 0, "percentage of packets with corrupted payload")
	flags.StringSliceVar(&m.disable, "disable", nil,
		"mechanisms to disable: lag, drop, throttle, duplicate, reorder, tamper or all")
}

// config returns the configuration resulting from applying the profile and the flags to base
func (m *mechanismFlags) config(flags *pflag.FlagSet, base impairment.Config) (impairment.Config, error) {
	config := base

	if m.profile != "" && m.preset != "" {
		return impairment.Config{}, fmt.Errorf("--profile and --preset cannot be used together")
	}

	if m.preset != "" {
		preset, err := impairment.Preset(m.preset)
		if err != nil {
			return impairment.Config{}, err
		}
		config = preset
	}

	if m.profile != "" {
		profile, err := impairment.LoadProfile(m.profile)
		if err != nil {
			return impairment.Config{}, err
		}
		config = profile
	}

	if flags.Changed("filter") {
		config.Filter = m.filter
	}
	if flags.Changed("lag-ms") {
		config.Lag = impairment.Lag{Enabled: true, DelayMs: m.lagMs}
	}
	if flags.Changed("drop-chance") {
		config.Drop = impairment.Drop{Enabled: true, Chance: m.dropChance}
	}
	if flags.Changed("throttle-ms") {
		config.Throttle.Enabled = true
		config.Throttle.DurationMs = m.throttleMs
	}
	if flags.Changed("throttle-chance") {
		config.Throttle.Enabled = true
		config.Throttle.Chance = m.throttleChance
	}
	if flags.Changed("duplicate-count") {
		config.Duplicate.Enabled = true
		config.Duplicate.Count = m.duplicateCount
	}
	if flags.Changed("duplicate-chance") {
		config.Duplicate.Enabled = true
		config.Duplicate.Chance = m.duplicateChance
	}
	if flags.Changed("reorder-chance") {
		config.Reorder.Enabled = true
		config.Reorder.Chance = m.reorderChance
	}
	if flags.Changed("reorder-queue-size") {
		config.Reorder.Enabled = true
		config.Reorder.QueueSize = m.reorderQueue
	}
	if flags.Changed("tamper-chance") {
		config.Tamper = impairment.Tamper{Enabled: true, Chance: m.tamperChance}
	}

	for _, name := range m.disable {
		if err := disable(&config, name); err != nil {
			return impairment.Config{}, err
		}
	}

	return config, nil
}

func disable(config *impairment.Config, name string) error {
	switch name {
	case "lag":
		config.Lag.Enabled = false
	case "drop":
		config.Drop.Enabled = false
	case "throttle":
		config.Throttle.Enabled = false
	case "duplicate":
		config.Duplicate.Enabled = false
	case "reorder":
		config.Reorder.Enabled = false
	case "tamper":
		config.Tamper.Enabled = false
	case "all":
		for _, m := range []string{"lag", "drop", "throttle", "duplicate", "reorder", "tamper"} {
			_ = disable(config, m)
		}
	default:
		return fmt.Errorf("unknown mechanism %q", name)
	}

	return nil
}
