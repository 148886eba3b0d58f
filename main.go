package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ericogr/max6675-to-mqtt/pkg/config"
	"github.com/ericogr/max6675-to-mqtt/pkg/max6675"
	"github.com/ericogr/max6675-to-mqtt/pkg/output"
	"github.com/ericogr/max6675-to-mqtt/pkg/output/console"
	"github.com/ericogr/max6675-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/max6675-to-mqtt/pkg/sensor"
)

type outputEntry struct {
	Type       string
	IntervalMs int
	Output     output.Output
}

// latest holds the most recent reading shared between the sensor loop and the
// outputs.
type latest struct {
	mu sync.Mutex
	r  sensor.Reading
	ok bool
}

func (l *latest) set(r sensor.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r, l.ok = r, true
}

func (l *latest) get() (sensor.Reading, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r, l.ok
}

func main() {
	if err := mainImpl(); err != nil {
		log.Fatal().Err(err).Msg("max6675-to-mqtt")
	}
}

func mainImpl() error {
	cfg, err := config.LoadFromFlags()
	setupLogging(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log.Info().
		Str("sensor", cfg.SensorType).
		Str("unit", cfg.Unit).
		Int("samples", cfg.Samples).
		Float64("calibration_offset", cfg.CalibrationOffset).
		Msg("starting")

	s, err := sensor.New(cfg)
	if err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	defer s.Close()

	interval := computeSensorInterval(cfg)
	entries, err := initOutputs(&cfg, interval)
	if err != nil {
		return err
	}
	defer closeOutputs(entries)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	run(ctx, s, entries, interval)
	log.Info().Msg("stopped")
	return nil
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// computeSensorInterval returns the sensor polling period in ms: the time one
// averaged read takes, or the configured interval if that is longer.
func computeSensorInterval(cfg config.Config) int {
	d := max6675.DefaultTiming().ReadDuration(cfg.Samples)
	ms := int((d + time.Millisecond - 1) / time.Millisecond)
	if cfg.IntervalMs > ms {
		return cfg.IntervalMs
	}
	if ms == 0 {
		return 1
	}
	return ms
}

// initOutputs creates the configured outputs. Outputs cannot publish faster
// than the sensor reads, so shorter intervals are raised to intervalMs.
func initOutputs(cfg *config.Config, intervalMs int) ([]outputEntry, error) {
	entries := make([]outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs < intervalMs {
			oc.IntervalMs = intervalMs
		}
		var (
			o   output.Output
			err error
		)
		switch strings.ToLower(oc.Type) {
		case "console":
			o = console.NewConsole()
		case "mqtt":
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err = mqtt.NewMQTT(mc, cfg.OutputUnit())
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			closeOutputs(entries)
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		entries = append(entries, outputEntry{Type: oc.Type, IntervalMs: oc.IntervalMs, Output: o})
		log.Info().Str("type", oc.Type).Int("interval_ms", oc.IntervalMs).Msg("output ready")
	}
	return entries, nil
}

func closeOutputs(entries []outputEntry) {
	for _, e := range entries {
		if err := e.Output.Close(); err != nil {
			log.Error().Err(err).Str("type", e.Type).Msg("failed to close output")
		}
	}
}

// run reads the sensor every intervalMs and lets every output publish the
// latest reading on its own schedule, until ctx is cancelled.
func run(ctx context.Context, s sensor.Sensor, entries []outputEntry, intervalMs int) {
	var (
		last latest
		wg   sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		readLoop(ctx, s, time.Duration(intervalMs)*time.Millisecond, &last)
	}()
	for _, e := range entries {
		wg.Add(1)
		go func(e outputEntry) {
			defer wg.Done()
			publishLoop(ctx, e, &last)
		}(e)
	}
	wg.Wait()
}

func readLoop(ctx context.Context, s sensor.Sensor, interval time.Duration, last *latest) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r, err := s.Read()
		switch {
		case err != nil:
			log.Error().Err(err).Msg("failed to read sensor")
		case r.Fault:
			log.Warn().Msg("thermocouple open circuit")
			last.set(r)
		default:
			log.Debug().Float64("value", r.Value).Float64("raw", r.Raw).Str("unit", r.Unit).Msg("reading")
			last.set(r)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func publishLoop(ctx context.Context, e outputEntry, last *latest) {
	ticker := time.NewTicker(time.Duration(e.IntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r, ok := last.get()
		if !ok {
			continue
		}
		if err := e.Output.Publish(r); err != nil {
			log.Error().Err(err).Str("type", e.Type).Msg("publish failed")
		}
	}
}
