package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/max6675-to-mqtt/pkg/config"
)

type Reading struct {
	// Raw is the averaged chip code with the calibration offset applied.
	Raw       float64   `json:"raw"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Fault     bool      `json:"fault"`
	Timestamp time.Time `json:"timestamp"`
}

type Sensor interface {
	Read() (Reading, error)
	Close() error
}

// New returns the sensor selected by cfg.SensorType.
func New(cfg config.Config) (Sensor, error) {
	switch cfg.SensorType {
	case config.SensorReal:
		return NewMAX6675Sensor(cfg)
	case config.SensorSimulation:
		return NewFakeSensor(cfg)
	}
	return nil, fmt.Errorf("unknown sensor type %q", cfg.SensorType)
}
