package sensor

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/gpio"

	"github.com/ericogr/max6675-to-mqtt/pkg/config"
	"github.com/ericogr/max6675-to-mqtt/pkg/max6675"
	"github.com/ericogr/max6675-to-mqtt/pkg/max6675/max6675test"
)

func noSleep(time.Duration) {}

func TestBuildOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Unit = "fahrenheit"
	cfg.CalibrationOffset = -1.5
	cfg.Samples = 3
	opts := buildOptions(cfg)
	if opts.Unit != max6675.Fahrenheit || opts.Offset != -1.5 || opts.Samples != 3 {
		t.Fatalf("opts: %+v", opts)
	}
	if opts.Timing != max6675.DefaultTiming() {
		t.Fatalf("timing: %+v", opts.Timing)
	}
}

func TestToReading(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := toReading(max6675.Reading{Code: 400, Value: 100, Unit: max6675.Celsius}, nil, now)
	if err != nil {
		t.Fatalf("toReading: %v", err)
	}
	want := Reading{Raw: 400, Value: 100, Unit: "celsius", Timestamp: now}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("reading mismatch (-want +got):\n%s", diff)
	}

	fault := fmt.Errorf("max6675{CS(8)}: %w", max6675.ErrOpenCircuit)
	got, err = toReading(max6675.Reading{Unit: max6675.Celsius, Fault: true}, fault, now)
	if err != nil {
		t.Fatalf("open circuit should not be an error: %v", err)
	}
	if !got.Fault {
		t.Fatalf("fault not reported: %+v", got)
	}

	boom := errors.New("boom")
	if _, err := toReading(max6675.Reading{}, boom, now); !errors.Is(err, boom) {
		t.Fatalf("expected pin error, got %v", err)
	}
}

func TestMAX6675SensorRead(t *testing.T) {
	chip := max6675test.New()
	chip.Push(max6675test.Frame{Code: 0x190}, max6675test.Frame{Code: 0x191})
	cfg := config.DefaultConfig()
	cfg.Samples = 2
	opts := buildOptions(cfg)
	opts.Sleep = noSleep
	dev, err := max6675.New(chip.CS, chip.SO, chip.SCK, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := &MAX6675Sensor{dev: dev, samples: cfg.Samples}
	defer s.Close()

	r, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Raw != 400 || r.Value != 100 || r.Unit != "celsius" || r.Fault {
		t.Fatalf("reading: %+v", r)
	}

	chip.Push(max6675test.Frame{Open: true})
	r, err = s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !r.Fault {
		t.Fatalf("expected a fault reading, got %+v", r)
	}
}

func TestMAX6675SensorCloseIdlesLines(t *testing.T) {
	chip := max6675test.New()
	opts := buildOptions(config.DefaultConfig())
	opts.Sleep = noSleep
	dev, err := max6675.New(chip.CS, chip.SO, chip.SCK, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := &MAX6675Sensor{dev: dev, samples: 1}
	_ = chip.CS.Out(gpio.Low)
	_ = chip.SCK.Out(gpio.High)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if chip.CS.Read() != gpio.High || chip.SCK.Read() != gpio.Low {
		t.Fatalf("lines not idle after Close: cs=%v sck=%v", chip.CS.Read(), chip.SCK.Read())
	}
}

func TestFakeSensor(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorSimulation
	cfg.Samples = 4
	f, err := newFakeSensor(cfg, noSleep)
	if err != nil {
		t.Fatalf("newFakeSensor: %v", err)
	}
	defer f.Close()
	for i := 0; i < 10; i++ {
		r, err := f.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if r.Fault || r.Value < 24 || r.Value > 26 {
			t.Fatalf("reading out of range: %+v", r)
		}
	}
	if got := f.chip.Cycles(); got != 40 {
		t.Fatalf("cycles: got %d want 40", got)
	}
}

func TestNewUnknownType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = "thermistor"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an unknown sensor type")
	}
}
