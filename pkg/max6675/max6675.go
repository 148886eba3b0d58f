// Package max6675 reads a Maxim MAX6675 cold-junction-compensated K-type
// thermocouple-to-digital converter over three bit-banged GPIO lines.
//
// The MAX6675 has no data input. Pulling select low and releasing it starts a
// conversion, which takes up to 220ms. Pulling select low again freezes the
// result and lets it be clocked out on the data line as a 16-bit frame: a
// dummy sign bit, 12 bits of temperature with 0.25°C resolution (0..1023.75°C),
// an open thermocouple flag, the device id and a three-state bit. All 16 bits
// must be clocked out or the next frame comes out garbled.
//
// Datasheet: https://www.analog.com/media/en/technical-documentation/data-sheets/MAX6675.pdf
package max6675

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

var (
	// ErrOpenCircuit is returned when the chip reports that no thermocouple
	// is connected.
	ErrOpenCircuit = errors.New("thermocouple open circuit")
	// ErrInvalidSamples is returned for a sample count below one.
	ErrInvalidSamples = errors.New("sample count must be at least 1")
	// ErrUnknownUnit is returned for a unit selector outside Raw..Fahrenheit.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrInvalidTiming is returned for a Timing with a negative delay.
	ErrInvalidTiming = errors.New("timing delays must not be negative")
)

// Opts holds various configuration options for the sensor
type Opts struct {
	Unit Unit
	// Offset is added to the averaged code before scaling, so it is expressed
	// in 0.25°C steps.
	Offset float64
	// Samples is the number of conversions averaged by Sense. Zero means 1.
	Samples int
	// Timing defaults to DefaultTiming when left zero.
	Timing Timing
	// Sleep waits between line transitions; nil means time.Sleep.
	Sleep func(time.Duration)
}

func DefaultOptions() *Opts {
	return &Opts{
		Unit:    Celsius,
		Samples: 1,
		Timing:  DefaultTiming(),
		Sleep:   time.Sleep,
	}
}

// Sample is the content of a single frame.
type Sample struct {
	Code uint16
	Open bool
}

// Reading is the result of Read.
//
// When Fault is set, Code and Value carry no information.
type Reading struct {
	// Code is the averaged code with the calibration offset applied.
	Code  float64
	Value float64
	Unit  Unit
	Fault bool
}

// New configures the three lines and returns a handle to the chip.
//
// cs and sck are driven to their idle levels, high and low respectively, and
// so is switched to input.
func New(cs gpio.PinOut, so gpio.PinIn, sck gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	d := &Dev{
		cs:   cs,
		so:   so,
		sck:  sck,
		opts: *opts,
		name: "max6675{" + cs.String() + "}",
	}
	if !d.opts.Unit.valid() {
		return nil, d.wrap(fmt.Errorf("%w: %d", ErrUnknownUnit, d.opts.Unit))
	}
	switch {
	case d.opts.Samples < 0:
		return nil, d.wrap(ErrInvalidSamples)
	case d.opts.Samples == 0:
		d.opts.Samples = 1
	}
	if d.opts.Timing == (Timing{}) {
		d.opts.Timing = DefaultTiming()
	}
	if !d.opts.Timing.valid() {
		return nil, d.wrap(fmt.Errorf("%w: %+v", ErrInvalidTiming, d.opts.Timing))
	}
	if d.opts.Sleep == nil {
		d.opts.Sleep = time.Sleep
	}

	if err := so.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, d.wrap(err)
	}
	if err := sck.Out(gpio.Low); err != nil {
		return nil, d.wrap(err)
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, d.wrap(err)
	}
	return d, nil
}

// Dev is a handle to a MAX6675 on three GPIO lines.
type Dev struct {
	cs   gpio.PinOut
	so   gpio.PinIn
	sck  gpio.PinOut
	opts Opts
	name string

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (d *Dev) String() string {
	return d.name
}

// Unit returns the unit Read scales to.
func (d *Dev) Unit() Unit {
	return d.opts.Unit
}

// Timing returns the delays used by each conversion.
func (d *Dev) Timing() Timing {
	return d.opts.Timing
}

// Read runs samples conversions and returns their average, calibrated and
// scaled to the configured unit.
//
// The average is truncated to a whole code before the offset is added. Only
// the last conversion decides whether the thermocouple is reported open; in
// that case the returned error wraps ErrOpenCircuit and the Reading has Fault
// set.
//
// Read blocks for about Timing().ReadDuration(samples) and cannot be
// interrupted.
func (d *Dev) Read(samples int) (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(samples)
}

// ReadSample runs a single conversion and returns the frame unprocessed.
func (d *Dev) ReadSample() (Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.convert()
	if err != nil {
		return s, d.wrap(err)
	}
	return s, nil
}

// Sense implements physic.SenseEnv. It averages Opts.Samples conversions and
// always reports in Celsius, regardless of the configured unit.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return d.wrap(errors.New("already sensing continuously"))
	}
	return d.sense(e)
}

// SenseContinuous returns measurements on a continuous basis.
//
// The application must call Halt() to stop the sensing when done to stop the
// sensor and close the channel. The interval is raised to the time a single
// Sense takes if it is shorter. Open thermocouple readings are skipped. A pin
// error ends the loop and closes the channel.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	// Don't let two loops share the lines.
	if err := d.Halt(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	sensing := make(chan physic.Env)
	stop := make(chan struct{})
	d.stop = stop
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(sensing)
		d.sensingContinuous(interval, sensing, stop)
	}()
	return sensing, nil
}

// Precision implements physic.SenseEnv. The chip resolves 0.25°C.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 4
}

// Halt stops a SenseContinuous loop and drives select and clock back to their
// idle levels. The chip itself has no low power mode.
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idle()
}

func (d *Dev) read(samples int) (Reading, error) {
	code, err := d.average(samples)
	if err != nil {
		if errors.Is(err, ErrOpenCircuit) {
			return Reading{Unit: d.opts.Unit, Fault: true}, err
		}
		return Reading{}, err
	}
	return Reading{Code: code, Value: scale(code, d.opts.Unit), Unit: d.opts.Unit}, nil
}

func (d *Dev) sense(e *physic.Env) error {
	code, err := d.average(d.opts.Samples)
	if err != nil {
		return err
	}
	c := scale(code, Celsius)
	e.Temperature = physic.Temperature(c*1000)*physic.MilliCelsius + physic.ZeroCelsius
	return nil
}

func (d *Dev) sensingContinuous(interval time.Duration, sensing chan<- physic.Env, stop <-chan struct{}) {
	if floor := d.opts.Timing.ReadDuration(d.opts.Samples); interval < floor {
		interval = floor
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		e := physic.Env{}
		d.mu.Lock()
		err := d.sense(&e)
		if err != nil && !errors.Is(err, ErrOpenCircuit) {
			// Leave the device usable by Sense once the loop is gone.
			if d.stop == stop {
				d.stop = nil
			}
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
		// An open thermocouple is skipped; sensing resumes once it is fixed.
		if err == nil {
			select {
			case sensing <- e:
			case <-stop:
				return
			}
		}
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

// average returns the truncated mean code of samples conversions plus the
// calibration offset.
func (d *Dev) average(samples int) (float64, error) {
	if samples < 1 {
		return 0, d.wrap(ErrInvalidSamples)
	}
	sum := 0
	var last Sample
	for i := 0; i < samples; i++ {
		s, err := d.convert()
		if err != nil {
			return 0, d.wrap(err)
		}
		sum += int(s.Code)
		last = s
	}
	if last.Open {
		return 0, d.wrap(ErrOpenCircuit)
	}
	return float64(sum/samples) + d.opts.Offset, nil
}

// convert triggers a conversion, waits for it and clocks out the frame.
func (d *Dev) convert() (Sample, error) {
	if err := d.trigger(); err != nil {
		return Sample{}, err
	}
	d.sleep(d.opts.Timing.Conversion)
	return d.readFrame()
}

// trigger pulses select low to start a conversion.
func (d *Dev) trigger() (err error) {
	if err = d.cs.Out(gpio.Low); err != nil {
		return err
	}
	released := false
	defer func() {
		if !released {
			if e := d.cs.Out(gpio.High); err == nil {
				err = e
			}
		}
	}()
	d.sleep(d.opts.Timing.Settle)
	err = d.cs.Out(gpio.High)
	released = err == nil
	return err
}

func (d *Dev) readFrame() (s Sample, err error) {
	if err = d.cs.Out(gpio.Low); err != nil {
		return s, err
	}
	defer func() {
		if e := d.cs.Out(gpio.High); err == nil {
			err = e
		}
	}()

	// Dummy sign bit, always 0.
	if _, err = d.clock(d.opts.Timing.Clock); err != nil {
		return s, err
	}
	for j := dataBits - 1; j >= 0; j-- {
		var l gpio.Level
		if l, err = d.clock(0); err != nil {
			return s, err
		}
		if l {
			s.Code |= 1 << uint(j)
		}
	}
	var open gpio.Level
	if open, err = d.clock(0); err != nil {
		return s, err
	}
	s.Open = bool(open)
	// Device id and state bits are unused but must be clocked out.
	for j := 0; j < flushBits; j++ {
		if _, err = d.clock(d.opts.Timing.Clock); err != nil {
			return s, err
		}
	}
	return s, nil
}

// clock raises sck, holds it for the given time, samples so and lowers sck.
func (d *Dev) clock(hold time.Duration) (gpio.Level, error) {
	if err := d.sck.Out(gpio.High); err != nil {
		return gpio.Low, err
	}
	d.sleep(hold)
	l := d.so.Read()
	return l, d.sck.Out(gpio.Low)
}

// idle drives select high and clock low.
func (d *Dev) idle() error {
	if err := d.sck.Out(gpio.Low); err != nil {
		return d.wrap(err)
	}
	if err := d.cs.Out(gpio.High); err != nil {
		return d.wrap(err)
	}
	return nil
}

func (d *Dev) sleep(t time.Duration) {
	if t > 0 {
		d.opts.Sleep(t)
	}
}

func (d *Dev) wrap(err error) error {
	return fmt.Errorf("%s: %w", d.name, err)
}

func scale(code float64, u Unit) float64 {
	switch u {
	case Celsius:
		return code * resolution
	case Fahrenheit:
		return code*resolution*9/5 + 32
	}
	return code
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
