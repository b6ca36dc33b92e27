package impairment

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_WireEncoding(t *testing.T) {
	t.Parallel()

	config := Config{
		Filter:    "outbound and udp",
		Lag:       Lag{Enabled: false, DelayMs: 150},
		Drop:      Drop{Enabled: true, Chance: 25},
		Throttle:  Throttle{Enabled: true, DurationMs: 40, Chance: 5},
		Duplicate: Duplicate{Enabled: false, Count: 2, Chance: 10},
		Reorder:   Reorder{Enabled: true, Chance: 7.5, QueueSize: 3},
		Tamper:    Tamper{Enabled: false, Chance: 1},
	}

	data, err := json.Marshal(config.ToWire())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fields := map[string]interface{}{}
	if err = json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]interface{}{
		"filter_str":           "outbound and udp",
		"lag_enabled":          false,
		"lag_ms":               float64(150),
		"drop_enabled":         true,
		"drop_chance":          float64(25),
		"throttle_enabled":     true,
		"throttle_ms":          float64(40),
		"throttle_chance":      float64(5),
		"duplicate_enabled":    false,
		"duplicate_count":      float64(2),
		"duplicate_chance":     float64(10),
		"out_of_order_enabled": true,
		"out_of_order_chance":  7.5,
		"ooo_queue_size":       float64(3),
		"tamper_enabled":       false,
		"tamper_chance":        float64(1),
	}

	if diff := cmp.Diff(expected, fields); diff != "" {
		t.Fatalf("wire fields do not match expected:\n%s", diff)
	}

	// the queue size is optional in documents returned by the engine
	if len(WireFields) != len(expected)-1 {
		t.Fatalf("expected %d required wire fields got %d", len(expected)-1, len(WireFields))
	}
	for _, f := range WireFields {
		if f == "ooo_queue_size" {
			t.Errorf("queue size should not be required")
		}
		if _, found := expected[f]; !found {
			t.Errorf("unexpected wire field %q", f)
		}
	}

	if diff := cmp.Diff(config, config.ToWire().Config()); diff != "" {
		t.Fatalf("config changed converting from wire:\n%s", diff)
	}
}

func Test_WireWithoutQueueSize(t *testing.T) {
	t.Parallel()

	wire := Wire{}
	doc := `{"filter_str": "tcp", "out_of_order_enabled": true, "out_of_order_chance": 30}`
	if err := json.Unmarshal([]byte(doc), &wire); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	config := wire.Config()
	expected := Reorder{Enabled: true, Chance: 30, QueueSize: Default().Reorder.QueueSize}
	if diff := cmp.Diff(expected, config.Reorder); diff != "" {
		t.Fatalf("reorder block does not match:\n%s", diff)
	}

	if err := config.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
