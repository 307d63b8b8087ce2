package serial

import "errors"

// ErrNoPort is returned when neither autodiscovery nor the configured path
// yields an openable field-bus device.
var ErrNoPort = errors.New("serial: no field-bus port found")

// ErrNotConnected is returned by Transport.Send when the bus is not
// currently connected.
var ErrNotConnected = errors.New("serial: transport not connected")
