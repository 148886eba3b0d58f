package max6675

import (
	"strings"
	"time"
)

// Unit selects how Read scales the averaged code.
type Unit int

const (
	// Raw returns the calibrated chip code, 0.25°C per step.
	Raw Unit = iota
	Celsius
	Fahrenheit
)

func (u Unit) String() string {
	switch u {
	case Raw:
		return "raw"
	case Celsius:
		return "celsius"
	case Fahrenheit:
		return "fahrenheit"
	}
	return "unknown"
}

// Symbol returns the unit of measurement as shown to users, empty for Raw.
func (u Unit) Symbol() string {
	switch u {
	case Celsius:
		return "°C"
	case Fahrenheit:
		return "°F"
	}
	return ""
}

// ParseUnit accepts the names returned by Unit.String plus the short forms
// "c" and "f". An empty name is rejected.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return Raw, nil
	case "celsius", "c":
		return Celsius, nil
	case "fahrenheit", "f":
		return Fahrenheit, nil
	}
	return Raw, ErrUnknownUnit
}

func (u Unit) valid() bool {
	return u >= Raw && u <= Fahrenheit
}

// Frame layout, MSB first: dummy sign bit, 12 data bits, open thermocouple
// flag, device id, state.
const (
	dataBits  = 12
	flushBits = 2

	// degrees Celsius per code step
	resolution = 0.25
)

// Timing holds the delays of one conversion-and-read cycle. The defaults come
// from the datasheet and must not be shortened on real hardware.
type Timing struct {
	// Settle is how long select is held low before triggering a conversion.
	Settle time.Duration
	// Conversion is the wait after select goes high for the ADC to finish.
	Conversion time.Duration
	// Clock is the high time of the dummy and flush pulses.
	Clock time.Duration
}

// DefaultTiming returns the datasheet timing: 2ms settle, 220ms conversion
// and 1ms clock.
func DefaultTiming() Timing {
	return Timing{
		Settle:     2 * time.Millisecond,
		Conversion: 220 * time.Millisecond,
		Clock:      1 * time.Millisecond,
	}
}

func (t Timing) valid() bool {
	return t.Settle >= 0 && t.Conversion >= 0 && t.Clock >= 0
}

// ReadDuration returns the time spent waiting during Read(samples), ignoring
// the bit clocking itself.
func (t Timing) ReadDuration(samples int) time.Duration {
	if samples < 1 {
		return 0
	}
	perSample := t.Settle + t.Conversion + (1+flushBits)*t.Clock
	return time.Duration(samples) * perSample
}
