package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/FujiiNoritsugu/haptic-core/internal/device"
	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
)

// Default client timings.
const (
	defaultRequestTimeout = 5 * time.Second
)

// Config carries per-client transport settings.
type Config struct {
	// RequestTimeout bounds a single request/response exchange,
	// including the WebSocket command acknowledgement wait.
	RequestTimeout time.Duration
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return c
}

// Client is the logical contract shared by both wire variants.
//
// Connect and the three operations return ErrConnection for network
// failures (retried by the supervisor), ErrProtocol for malformed wire
// data, and ErrDevice when the device itself reports a fault.
type Client interface {
	// Connect establishes (HTTP: probes) the connection.
	Connect(ctx context.Context) error

	// Close releases the connection. Safe to call repeatedly.
	Close() error

	// SendPattern delivers a validated pattern for playback.
	SendPattern(ctx context.Context, p pattern.VibrationPattern) error

	// SendStop requests playback stop.
	SendStop(ctx context.Context) error

	// RequestStatus polls the device's playback status.
	RequestStatus(ctx context.Context) (DeviceStatus, error)

	// SetOnStatus installs the status observer. On the WebSocket
	// variant it also receives unsolicited pushes. Must be called
	// before Connect.
	SetOnStatus(fn OnStatusFunc)

	// Connected reports whether the client currently considers the
	// device reachable.
	Connected() bool
}

// New creates the client matching the descriptor's transport.
func New(desc *device.Descriptor, cfg Config) (Client, error) {
	cfg = cfg.withDefaults()

	switch desc.Transport {
	case device.TransportHTTP:
		return NewHTTPClient(desc.BaseURL(), cfg), nil
	case device.TransportWebSocket:
		return NewWSClient(desc.WSURL(), cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrProtocol, desc.Transport)
	}
}
