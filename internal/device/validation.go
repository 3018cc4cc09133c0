package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxHostLength = 253 // RFC 1035 domain name limit
	maxPortNumber = 65535
)

// ValidateDescriptor performs comprehensive validation on a descriptor.
// Returns an error describing the first validation failure found.
func ValidateDescriptor(d *Descriptor) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if err := validateHost(d.Host); err != nil {
		return err
	}

	if d.Port < 1 || d.Port > maxPortNumber {
		return fmt.Errorf("%w: %d", ErrInvalidPort, d.Port)
	}

	switch d.Transport {
	case TransportHTTP, TransportWebSocket:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTransport, d.Transport)
	}

	// The websocket path must be usable as a URL path. HTTP devices
	// may leave it empty.
	if d.Transport == TransportWebSocket {
		if d.WSPath == "" || !strings.HasPrefix(d.WSPath, "/") {
			return fmt.Errorf("%w: %q", ErrInvalidWSPath, d.WSPath)
		}
	}
	if d.WSPath != "" && !strings.HasPrefix(d.WSPath, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidWSPath, d.WSPath)
	}

	return nil
}

// ValidateName checks a device name is non-empty and within limits.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// validateHost checks a host is non-empty, within length limits, and
// free of characters that would corrupt a URL.
func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("%w: empty", ErrInvalidHost)
	}
	if len(host) > maxHostLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidHost, maxHostLength)
	}
	if strings.ContainsAny(host, " /\\?#@") {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
