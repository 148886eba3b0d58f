package sensor

import (
	"errors"
	"time"

	"github.com/ericogr/max6675-to-mqtt/pkg/config"
	"github.com/ericogr/max6675-to-mqtt/pkg/max6675"
)

// buildOptions extracts the driver settings from the config.
func buildOptions(cfg config.Config) *max6675.Opts {
	opts := max6675.DefaultOptions()
	opts.Unit = cfg.OutputUnit()
	opts.Offset = cfg.CalibrationOffset
	opts.Samples = cfg.Samples
	return opts
}

// toReading turns a driver result into a Reading. An open thermocouple is a
// valid reading with Fault set, not an error.
func toReading(r max6675.Reading, err error, now time.Time) (Reading, error) {
	if err != nil && !errors.Is(err, max6675.ErrOpenCircuit) {
		return Reading{}, err
	}
	return Reading{
		Raw:       r.Code,
		Value:     r.Value,
		Unit:      r.Unit.String(),
		Fault:     r.Fault,
		Timestamp: now,
	}, nil
}
