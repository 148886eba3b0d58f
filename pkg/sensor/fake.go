package sensor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/max6675-to-mqtt/pkg/config"
	"github.com/ericogr/max6675-to-mqtt/pkg/max6675"
	"github.com/ericogr/max6675-to-mqtt/pkg/max6675/max6675test"
)

// Codes produced by the simulated chip, around 25°C.
const (
	fakeBaseCode  = 100
	fakeVariation = 4
)

// FakeSensor runs the real driver against a simulated chip.
type FakeSensor struct {
	chip    *max6675test.Chip
	dev     *max6675.Dev
	samples int
	mu      sync.Mutex
}

func NewFakeSensor(cfg config.Config) (Sensor, error) {
	f, err := newFakeSensor(cfg, time.Sleep)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func newFakeSensor(cfg config.Config, sleep func(time.Duration)) (*FakeSensor, error) {
	chip := max6675test.New()
	opts := buildOptions(cfg)
	opts.Sleep = sleep
	dev, err := max6675.New(chip.CS, chip.SO, chip.SCK, opts)
	if err != nil {
		return nil, err
	}
	return &FakeSensor{chip: chip, dev: dev, samples: cfg.Samples}, nil
}

func (f *FakeSensor) Read() (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < f.samples; i++ {
		code := fakeBaseCode + rand.Intn(2*fakeVariation+1) - fakeVariation
		f.chip.Push(max6675test.Frame{Code: uint16(code)})
	}
	r, err := f.dev.Read(f.samples)
	return toReading(r, err, time.Now())
}

func (f *FakeSensor) Close() error { return f.dev.Halt() }
