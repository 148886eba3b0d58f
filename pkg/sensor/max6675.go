package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/max6675-to-mqtt/pkg/config"
	"github.com/ericogr/max6675-to-mqtt/pkg/max6675"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type MAX6675Sensor struct {
	dev     *max6675.Dev
	samples int
}

func NewMAX6675Sensor(cfg config.Config) (Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	cs, err := openPin("select", cfg.Pins.Select)
	if err != nil {
		return nil, err
	}
	so, err := openPin("data", cfg.Pins.Data)
	if err != nil {
		return nil, err
	}
	sck, err := openPin("clock", cfg.Pins.Clock)
	if err != nil {
		return nil, err
	}
	dev, err := max6675.New(cs, so, sck, buildOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("init max6675: %w", err)
	}
	return &MAX6675Sensor{dev: dev, samples: cfg.Samples}, nil
}

func (s *MAX6675Sensor) Read() (Reading, error) {
	r, err := s.dev.Read(s.samples)
	return toReading(r, err, time.Now())
}

// Close stops the driver and leaves select high and clock low.
func (s *MAX6675Sensor) Close() error {
	return s.dev.Halt()
}

func openPin(role, name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("open %s pin: no gpio named %q", role, name)
	}
	return p, nil
}
