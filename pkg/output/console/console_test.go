package console

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/ericogr/max6675-to-mqtt/pkg/sensor"
)

func captureStdout(f func()) string {
	r, w, _ := os.Pipe()
	stdout := os.Stdout
	os.Stdout = w
	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()
	f()
	_ = w.Close()
	os.Stdout = stdout
	return <-outC
}

func TestConsolePublish(t *testing.T) {
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	reading := sensor.Reading{Raw: 400, Value: 100, Unit: "celsius", Timestamp: ts}
	out := captureStdout(func() { _ = NewConsole().Publish(reading) })
	want := "2025-09-19T14:41:54Z unit=celsius raw=400 value=100.00 fault=false\n"
	if out != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", out, want)
	}
}

func TestConsolePublishFault(t *testing.T) {
	var buf bytes.Buffer
	c := &ConsoleOutput{w: &buf}
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	if err := c.Publish(sensor.Reading{Unit: "fahrenheit", Fault: true, Timestamp: ts}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	want := "2025-09-19T14:41:54Z unit=fahrenheit raw=0 value=0.00 fault=true\n"
	if buf.String() != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", buf.String(), want)
	}
}
