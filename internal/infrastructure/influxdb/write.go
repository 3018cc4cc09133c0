package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePlaybackMetric writes a single playback measurement for a device.
//
// This is the primary method for recording playback telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "left-wrist")
//   - metric: The metric name (e.g., "step_intensity", "current_step")
//   - value: The numeric value to record
//
// Example:
//
//	client.WritePlaybackMetric("left-wrist", "step_intensity", 80)
//	client.WritePlaybackMetric("left-wrist", "current_repeat", 2)
func (c *Client) WritePlaybackMetric(deviceID string, metric string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"playback",
		map[string]string{
			"device_id": deviceID,
			"metric":    metric,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteStateTransition records a device state change.
//
// Used for tracking how often devices move between idle, playing,
// error, disconnected and unreachable.
//
// Parameters:
//   - deviceID: Device identifier
//   - from: The state being left
//   - to: The state being entered
func (c *Client) WriteStateTransition(deviceID string, from, to string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"state_transitions",
		map[string]string{
			"device_id": deviceID,
			"from":      from,
			"to":        to,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteReconnect records a successful device reconnection and how many
// attempts it took.
//
// Parameters:
//   - deviceID: Device identifier
//   - attempts: Consecutive failed attempts before this reconnect
func (c *Client) WriteReconnect(deviceID string, attempts int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connection",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"reconnects": 1,
			"attempts":   attempts,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("fleet_stats",
//	    map[string]string{"host": "hapticd-01"},
//	    map[string]interface{}{"devices_connected": 4})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
