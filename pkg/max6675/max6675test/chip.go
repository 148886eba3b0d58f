// Package max6675test implements a software MAX6675 driven through
// gpiotest pins, for tests and for running without hardware.
package max6675test

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// Frame is what the chip reports for one conversion.
type Frame struct {
	Code uint16
	Open bool
}

// word returns the 16 bits shifted out, MSB first.
func (f Frame) word() uint16 {
	w := (f.Code & 0xfff) << 3
	if f.Open {
		w |= 1 << 2
	}
	return w
}

// Chip decodes the line activity of a driver and answers with queued frames.
//
// A frame is consumed when select rises after at least one clock pulse. A
// select pulse without clocks counts as a conversion trigger. Once the queue
// is drained the last frame is repeated.
type Chip struct {
	CS  *SelectPin
	SO  *DataPin
	SCK *ClockPin

	mu       sync.Mutex
	frames   []Frame
	last     Frame
	word     uint16
	selected bool
	edges    int
	cycles   int
	triggers int
}

// New returns a chip whose pins are named CS, SO and SCK and numbered after
// the Raspberry Pi SPI0 pins.
func New() *Chip {
	c := &Chip{}
	c.CS = &SelectPin{Pin: &gpiotest.Pin{N: "CS", Num: 8, L: gpio.High}, chip: c}
	c.SO = &DataPin{Pin: &gpiotest.Pin{N: "SO", Num: 9}, chip: c}
	c.SCK = &ClockPin{Pin: &gpiotest.Pin{N: "SCK", Num: 11}, chip: c}
	return c
}

// Push queues frames to be returned by the next conversions.
func (c *Chip) Push(frames ...Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frames...)
}

// Cycles returns the number of frames clocked out so far.
func (c *Chip) Cycles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

// Triggers returns the number of conversion pulses seen so far.
func (c *Chip) Triggers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers
}

// Edges returns the clock pulses seen since select last went low.
func (c *Chip) Edges() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.edges
}

func (c *Chip) peek() Frame {
	if len(c.frames) > 0 {
		return c.frames[0]
	}
	return c.last
}

func (c *Chip) selectChanged(l gpio.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l == gpio.Low {
		if !c.selected {
			c.selected = true
			c.edges = 0
			c.word = c.peek().word()
		}
		return
	}
	if !c.selected {
		return
	}
	c.selected = false
	if c.edges == 0 {
		c.triggers++
		return
	}
	c.cycles++
	if len(c.frames) > 0 {
		c.last = c.frames[0]
		c.frames = c.frames[1:]
	}
}

func (c *Chip) clockChanged(l gpio.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l == gpio.High && c.selected {
		c.edges++
	}
}

// level is the data line as seen after the latest rising clock edge.
func (c *Chip) level() gpio.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected || c.edges < 1 || c.edges > 16 {
		return gpio.Low
	}
	return c.word&(1<<uint(16-c.edges)) != 0
}

// SelectPin is the chip select input of the chip.
type SelectPin struct {
	*gpiotest.Pin
	chip *Chip
}

// Out implements gpio.PinOut.
func (p *SelectPin) Out(l gpio.Level) error {
	if err := p.Pin.Out(l); err != nil {
		return err
	}
	p.chip.selectChanged(l)
	return nil
}

// ClockPin is the serial clock input of the chip.
type ClockPin struct {
	*gpiotest.Pin
	chip *Chip
}

// Out implements gpio.PinOut.
func (p *ClockPin) Out(l gpio.Level) error {
	if err := p.Pin.Out(l); err != nil {
		return err
	}
	p.chip.clockChanged(l)
	return nil
}

// DataPin is the serial output of the chip.
type DataPin struct {
	*gpiotest.Pin
	chip *Chip
}

// Read implements gpio.PinIn.
func (p *DataPin) Read() gpio.Level {
	return p.chip.level()
}
