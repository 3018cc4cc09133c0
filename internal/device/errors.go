package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when descriptor validation fails.
	// The specific validation errors below all wrap it.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = fmt.Errorf("%w name", ErrInvalidDevice)

	// ErrInvalidHost is returned when a host is empty or malformed.
	ErrInvalidHost = fmt.Errorf("%w host", ErrInvalidDevice)

	// ErrInvalidPort is returned when a port is outside 1-65535.
	ErrInvalidPort = fmt.Errorf("%w port", ErrInvalidDevice)

	// ErrInvalidTransport is returned when a transport value is not recognised.
	ErrInvalidTransport = fmt.Errorf("%w transport", ErrInvalidDevice)

	// ErrInvalidWSPath is returned when a websocket path does not begin with "/".
	ErrInvalidWSPath = fmt.Errorf("%w websocket path", ErrInvalidDevice)
)
