// Package fleet orchestrates operations across the registered haptic
// devices.
//
// The Coordinator holds one connection supervisor per device and fans
// each fleet operation out to its targets concurrently, aggregating a
// per-device result map. One device failing, lagging, or being
// unreachable never delays or aborts the others.
//
// Targeting: an empty id list addresses every registered device.
// Unknown ids get an error entry in the result map; the call as a
// whole fails only when there is nothing at all to address.
//
// Status snapshots from the supervisors are fanned out to subscribers
// (the management WebSocket hub, the MQTT relay, the telemetry
// writer), so consumers observe state changes without polling.
package fleet
