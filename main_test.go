package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ericogr/max6675-to-mqtt/pkg/config"
	"github.com/ericogr/max6675-to-mqtt/pkg/sensor"
)

func TestComputeSensorInterval(t *testing.T) {
	// one sample takes 2+220+3*1 ms
	cfg := config.Config{Samples: 1}
	if got := computeSensorInterval(cfg); got != 225 {
		t.Fatalf("one sample interval: got %d want 225", got)
	}

	// the configured interval wins when it is longer
	cfg = config.Config{Samples: 4, IntervalMs: 1000}
	if got := computeSensorInterval(cfg); got != 1000 {
		t.Fatalf("configured interval: got %d want 1000", got)
	}

	// eight samples cannot be read within a second
	cfg = config.Config{Samples: 8, IntervalMs: 1000}
	if got := computeSensorInterval(cfg); got != 1800 {
		t.Fatalf("eight sample interval: got %d want 1800", got)
	}

	// never zero
	if got := computeSensorInterval(config.Config{}); got != 1 {
		t.Fatalf("empty config interval: got %d want 1", got)
	}
}

func TestInitOutputsSetsInterval(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "Console", IntervalMs: 5000}}}
	entries, err := initOutputs(&cfg, 123)
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries len: %d", len(entries))
	}
	if cfg.Outputs[0].IntervalMs != 123 {
		t.Fatalf("cfg output interval not set, got %d", cfg.Outputs[0].IntervalMs)
	}
	if entries[0].IntervalMs != 123 {
		t.Fatalf("entry interval not set, got %d", entries[0].IntervalMs)
	}
	if entries[1].IntervalMs != 5000 {
		t.Fatalf("longer interval overwritten, got %d", entries[1].IntervalMs)
	}
}

func TestInitOutputsUnknownType(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "influx"}}}
	if _, err := initOutputs(&cfg, 100); err == nil {
		t.Fatal("expected an error for an unknown output type")
	}
}

type stubSensor struct {
	mu    sync.Mutex
	reads int
}

func (s *stubSensor) Read() (sensor.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return sensor.Reading{Raw: 400, Value: 100, Unit: "celsius", Timestamp: time.Now()}, nil
}

func (s *stubSensor) Close() error { return nil }

type chanOutput chan sensor.Reading

func (c chanOutput) Publish(r sensor.Reading) error {
	select {
	case c <- r:
	default:
	}
	return nil
}

func (c chanOutput) Close() error { return nil }

func TestRunPublishesLatestReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chanOutput, 1)
	s := &stubSensor{}
	done := make(chan struct{})
	go func() {
		run(ctx, s, []outputEntry{{Type: "test", IntervalMs: 5, Output: out}}, 5)
		close(done)
	}()

	select {
	case r := <-out:
		if r.Value != 100 || r.Unit != "celsius" {
			t.Fatalf("published reading: %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a publish")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
