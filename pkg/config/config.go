package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ericogr/max6675-to-mqtt/pkg/max6675"
)

const (
	SensorReal       = "real"
	SensorSimulation = "simulation"
)

type MQTTConfig struct {
	Server            string `json:"server"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	ClientID          string `json:"client_id"`
	StateTopic        string `json:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty"`
}

type OutputConfig struct {
	Type       string      `json:"type"`
	IntervalMs int         `json:"interval_ms,omitempty"`
	MQTT       *MQTTConfig `json:"mqtt,omitempty"`
}

// PinsConfig names the three GPIO lines as known to gpioreg.
type PinsConfig struct {
	Select string `json:"select"`
	Data   string `json:"data"`
	Clock  string `json:"clock"`
}

type Config struct {
	Pins              PinsConfig     `json:"pins"`
	Unit              string         `json:"unit"`
	CalibrationOffset float64        `json:"calibration_offset"`
	Samples           int            `json:"samples"`
	Outputs           []OutputConfig `json:"outputs"`
	SensorType        string         `json:"sensor_type"`
	IntervalMs        int            `json:"interval_ms"`
	LogLevel          string         `json:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		// Raspberry Pi SPI0 header pins, bit-banged.
		Pins:              PinsConfig{Select: "GPIO8", Data: "GPIO9", Clock: "GPIO11"},
		Unit:              "celsius",
		CalibrationOffset: 0.0,
		Samples:           1,
		Outputs:           []OutputConfig{{Type: "console", IntervalMs: 1000}},
		SensorType:        SensorReal,
		IntervalMs:        1000,
		LogLevel:          "info",
	}
}

// LoadFromFlags loads configuration from a JSON file (optional) and flags.
// Flags override values present in the JSON file.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load is LoadFromFlags on an explicit argument list.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("max6675-to-mqtt", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON config file")
	flagSelect := fs.String("pin-select", "", "Chip select pin name (e.g., GPIO8)")
	flagData := fs.String("pin-data", "", "Serial data (SO) pin name (e.g., GPIO9)")
	flagClock := fs.String("pin-clock", "", "Serial clock pin name (e.g., GPIO11)")
	flagUnit := fs.String("unit", "", "Output unit: raw|celsius|fahrenheit")
	flagCalOffset := fs.Float64("calibration-offset", math.NaN(), "Calibration offset in 0.25°C steps")
	flagSamples := fs.Int("samples", -1, "Conversions averaged per reading")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagDiscovery := fs.String("mqtt-discovery-topic", "", "Home Assistant discovery topic")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagInterval := fs.Int("interval-ms", -1, "Publish interval in ms")
	flagLogLevel := fs.String("log-level", "", "Log level (debug,info,warn,error)")

	cfg := DefaultConfig()
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *flagSelect != "" {
		cfg.Pins.Select = *flagSelect
	}
	if *flagData != "" {
		cfg.Pins.Data = *flagData
	}
	if *flagClock != "" {
		cfg.Pins.Clock = *flagClock
	}
	if *flagUnit != "" {
		cfg.Unit = *flagUnit
	}
	if !math.IsNaN(*flagCalOffset) {
		cfg.CalibrationOffset = *flagCalOffset
	}
	if *flagSamples != -1 {
		cfg.Samples = *flagSamples
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p, IntervalMs: cfg.IntervalMs})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		intervals, err := parseKeyIntMap(*flagOutputIntervals)
		if err != nil {
			return cfg, fmt.Errorf("output-intervals: %w", err)
		}
		for i := range cfg.Outputs {
			if v, ok := intervals[strings.ToLower(cfg.Outputs[i].Type)]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}
	mqttFlags := MQTTConfig{
		Server:         *flagMQTTServer,
		Username:       *flagMQTTUser,
		Password:       *flagMQTTPass,
		ClientID:       *flagClientID,
		StateTopic:     *flagTopic,
		DiscoveryTopic: *flagDiscovery,
	}
	if mqttFlags != (MQTTConfig{}) {
		// Apply MQTT flags to all mqtt outputs; if none exist, create one.
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == "mqtt" {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				mergeMQTT(cfg.Outputs[i].MQTT, mqttFlags)
				applied = true
			}
		}
		if !applied {
			mqttOut := OutputConfig{Type: "mqtt", IntervalMs: cfg.IntervalMs, MQTT: &MQTTConfig{}}
			mergeMQTT(mqttOut.MQTT, mqttFlags)
			cfg.Outputs = append(cfg.Outputs, mqttOut)
		}
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	// ensure outputs have interval default
	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = cfg.IntervalMs
		}
	}

	return cfg, cfg.Validate()
}

// Validate reports the first setting that cannot be used to run the sensor.
func (c Config) Validate() error {
	if c.Samples < 1 {
		return errors.New("samples must be >= 1")
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	if _, err := max6675.ParseUnit(c.Unit); err != nil {
		return fmt.Errorf("unit %q: %w", c.Unit, err)
	}
	switch c.SensorType {
	case SensorReal:
		if c.Pins.Select == "" || c.Pins.Data == "" || c.Pins.Clock == "" {
			return errors.New("pins: select, data and clock are required")
		}
	case SensorSimulation:
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	return nil
}

// OutputUnit returns the parsed unit; Validate guarantees it parses.
func (c Config) OutputUnit() max6675.Unit {
	u, _ := max6675.ParseUnit(c.Unit)
	return u
}

func mergeMQTT(dst *MQTTConfig, src MQTTConfig) {
	if src.Server != "" {
		dst.Server = src.Server
	}
	if src.Username != "" {
		dst.Username = src.Username
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.ClientID != "" {
		dst.ClientID = src.ClientID
	}
	if src.StateTopic != "" {
		dst.StateTopic = src.StateTopic
	}
	if src.DiscoveryTopic != "" {
		dst.DiscoveryTopic = src.DiscoveryTopic
	}
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseKeyIntMap parses "console=1000,mqtt=5000" into a map.
func parseKeyIntMap(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry '%s'", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value in '%s': %w", p, err)
		}
		out[strings.ToLower(strings.TrimSpace(kv[0]))] = v
	}
	return out, nil
}
