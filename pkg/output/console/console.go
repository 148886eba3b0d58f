package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/max6675-to-mqtt/pkg/output"
	"github.com/ericogr/max6675-to-mqtt/pkg/sensor"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

func (c *ConsoleOutput) Publish(r sensor.Reading) error {
	_, err := fmt.Fprintf(c.w, "%s unit=%s raw=%g value=%.2f fault=%t\n", r.Timestamp.Format(time.RFC3339), r.Unit, r.Raw, r.Value, r.Fault)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
