// Package serial owns the RS-485 serial port: port selection
// (configured path or VID:PID autodiscovery), a paced writer with a
// bus-lock gate, a reader feeding the shared packet parser, and a
// reconnection supervisor.
package serial

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Baud is the fixed field-bus baud rate: 38400 8N1, no software flow
// control. tarm/serial asserts DSR/DTR and leaves flow control off by
// default, matching the field-bus's requirements.
const Baud = 38400

// Open opens name at the field-bus's fixed serial parameters. readTimeout
// bounds each blocking Read so the reader goroutine can observe context
// cancellation between reads.
func Open(name string, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{
		Name:        name,
		Baud:        Baud,
		ReadTimeout: readTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	return serial.OpenPort(cfg)
}
