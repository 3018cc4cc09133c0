package transport

import "errors"

// Error taxonomy for the transport package.
//
// ErrConnection failures are retried by the connection supervisor;
// ErrProtocol and ErrDevice are surfaced to the caller unchanged.
var (
	// ErrNotConnected is returned when an operation needs an open
	// connection and there is none.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrConnection is returned for network-level failures: unreachable
	// host, timeout, dropped socket.
	ErrConnection = errors.New("transport: connection failed")

	// ErrProtocol is returned for malformed or unexpected wire data.
	ErrProtocol = errors.New("transport: protocol error")

	// ErrDevice is returned when the device reports an internal fault.
	// The device's message is carried verbatim in the wrapping error.
	ErrDevice = errors.New("transport: device error")
)
