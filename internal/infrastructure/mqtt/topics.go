package mqtt

import "fmt"

// Topic prefixes for the haptic status relay.
//
// Per-device topics use the flat scheme: haptic/{category}/{device_id}.
const (
	// TopicPrefix is the base for all haptic topics.
	TopicPrefix = "haptic"

	// TopicPrefixSystem is the base for host-level topics.
	TopicPrefixSystem = "haptic/system"
)

// Topics provides builders for haptic MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus("left-wrist")
//	// Returns: "haptic/status/left-wrist"
type Topics struct{}

// DeviceStatus returns the retained status topic for one device.
//
// Example: haptic/status/left-wrist
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, deviceID)
}

// AllDeviceStatuses returns a pattern matching every device status topic.
//
// Pattern: haptic/status/+
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/status/+", TopicPrefix)
}

// DeviceEvent returns the topic for per-device lifecycle events
// (registered, unregistered, unreachable).
//
// Example: haptic/event/left-wrist
func (Topics) DeviceEvent(deviceID string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the host status topic carrying the online flag
// and the Last Will message.
//
// Example: haptic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
