package device

import (
	"fmt"
	"time"
)

// Transport selects the wire variant used to talk to a device.
type Transport string

// Supported transports.
const (
	// TransportHTTP polls the device's REST endpoints.
	TransportHTTP Transport = "http"

	// TransportWebSocket holds a persistent socket; the device may push
	// unsolicited status updates.
	TransportWebSocket Transport = "websocket"
)

// AllTransports returns every supported transport.
func AllTransports() []Transport {
	return []Transport{TransportHTTP, TransportWebSocket}
}

// Descriptor identifies one haptic device and how to reach it.
// This matches the database schema in migrations/20260830_100000_initial_schema.up.sql.
//
// A descriptor is immutable once registered except by explicit
// update-or-replace through the Registry.
type Descriptor struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Address
	Host   string `json:"host"`
	Port   int    `json:"port"`
	WSPath string `json:"ws_path"`

	// Wire variant
	Transport Transport `json:"transport"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the Descriptor. All fields
// are values, so a struct copy is sufficient; the method exists to keep
// cache isolation explicit at call sites.
func (d *Descriptor) DeepCopy() *Descriptor {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// Addr returns the host:port address of the device.
func (d *Descriptor) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// BaseURL returns the device's HTTP base URL.
func (d *Descriptor) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.Host, d.Port)
}

// WSURL returns the device's WebSocket URL.
func (d *Descriptor) WSURL() string {
	return fmt.Sprintf("ws://%s:%d%s", d.Host, d.Port, d.WSPath)
}
