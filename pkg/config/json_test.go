package config

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalConfigJSON(t *testing.T) {
	js := `{
        "pins": { "select": "GPIO8", "data": "GPIO9", "clock": "GPIO11" },
        "unit": "fahrenheit",
        "calibration_offset": -3,
        "samples": 4,
        "sensor_type": "real",
        "log_level": "debug",
        "outputs": [
            {"type": "console"},
            {"type": "mqtt", "interval_ms": 5000, "mqtt": {"server": "tcp://broker:1883", "state_topic": "max6675/temperature", "discovery_topic": "homeassistant/sensor/max6675/config"}}
        ]
    }`

	var cfg Config
	if err := json.Unmarshal([]byte(js), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.Pins.Select != "GPIO8" || cfg.Pins.Data != "GPIO9" || cfg.Pins.Clock != "GPIO11" {
		t.Fatalf("pins: %+v", cfg.Pins)
	}
	if cfg.Unit != "fahrenheit" {
		t.Fatalf("unit: got %q", cfg.Unit)
	}
	if cfg.CalibrationOffset != -3 {
		t.Fatalf("calibration_offset: got %v", cfg.CalibrationOffset)
	}
	if cfg.Samples != 4 {
		t.Fatalf("samples: got %d", cfg.Samples)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level: got %q", cfg.LogLevel)
	}
	if len(cfg.Outputs) != 2 || cfg.Outputs[0].Type != "console" {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
	m := cfg.Outputs[1].MQTT
	if m == nil || m.StateTopic != "max6675/temperature" || m.DiscoveryTopic == "" || cfg.Outputs[1].IntervalMs != 5000 {
		t.Fatalf("mqtt output incorrect: %+v", cfg.Outputs[1])
	}
}
