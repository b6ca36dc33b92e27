package impairment

// Wire is the flat representation of a Config used by the engine's control API.
// OutOfOrderQueue is optional: engines that do not report it use the default.
type Wire struct {
	Filter            string  `json:"filter_str"`
	LagEnabled        bool    `json:"lag_enabled"`
	LagMs             int     `json:"lag_ms"`
	DropEnabled       bool    `json:"drop_enabled"`
	DropChance        float64 `json:"drop_chance"`
	ThrottleEnabled   bool    `json:"throttle_enabled"`
	ThrottleMs        int     `json:"throttle_ms"`
	ThrottleChance    float64 `json:"throttle_chance"`
	DuplicateEnabled  bool    `json:"duplicate_enabled"`
	DuplicateCount    int     `json:"duplicate_count"`
	DuplicateChance   float64 `json:"duplicate_chance"`
	OutOfOrderEnabled bool    `json:"out_of_order_enabled"`
	OutOfOrderChance  float64 `json:"out_of_order_chance"`
	OutOfOrderQueue   *int    `json:"ooo_queue_size,omitempty"`
	TamperEnabled     bool    `json:"tamper_enabled"`
	TamperChance      float64 `json:"tamper_chance"`
}

// WireFields lists the keys every config document returned by the engine must have
var WireFields = []string{
	"filter_str",
	"lag_enabled", "lag_ms",
	"drop_enabled", "drop_chance",
	"throttle_enabled", "throttle_ms", "throttle_chance",
	"duplicate_enabled", "duplicate_count", "duplicate_chance",
	"out_of_order_enabled", "out_of_order_chance",
	"tamper_enabled", "tamper_chance",
}

// ToWire converts the configuration to its wire representation
func (c Config) ToWire() Wire {
	queueSize := c.Reorder.QueueSize

	return Wire{
		Filter:            c.Filter,
		LagEnabled:        c.Lag.Enabled,
		LagMs:             c.Lag.DelayMs,
		DropEnabled:       c.Drop.Enabled,
		DropChance:        c.Drop.Chance,
		ThrottleEnabled:   c.Throttle.Enabled,
		ThrottleMs:        c.Throttle.DurationMs,
		ThrottleChance:    c.Throttle.Chance,
		DuplicateEnabled:  c.Duplicate.Enabled,
		DuplicateCount:    c.Duplicate.Count,
		DuplicateChance:   c.Duplicate.Chance,
		OutOfOrderEnabled: c.Reorder.Enabled,
		OutOfOrderChance:  c.Reorder.Chance,
		OutOfOrderQueue:   &queueSize,
		TamperEnabled:     c.Tamper.Enabled,
		TamperChance:      c.Tamper.Chance,
	}
}

// Config converts the wire representation back to a Config. A missing
// queue size takes the value from Default.
func (w Wire) Config() Config {
	queueSize := Default().Reorder.QueueSize
	if w.OutOfOrderQueue != nil {
		queueSize = *w.OutOfOrderQueue
	}

	return Config{
		Filter:    w.Filter,
		Lag:       Lag{Enabled: w.LagEnabled, DelayMs: w.LagMs},
		Drop:      Drop{Enabled: w.DropEnabled, Chance: w.DropChance},
		Throttle:  Throttle{Enabled: w.ThrottleEnabled, DurationMs: w.ThrottleMs, Chance: w.ThrottleChance},
		Duplicate: Duplicate{Enabled: w.DuplicateEnabled, Count: w.DuplicateCount, Chance: w.DuplicateChance},
		Reorder:   Reorder{Enabled: w.OutOfOrderEnabled, Chance: w.OutOfOrderChance, QueueSize: queueSize},
		Tamper:    Tamper{Enabled: w.TamperEnabled, Chance: w.TamperChance},
	}
}
