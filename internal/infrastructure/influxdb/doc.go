// Package influxdb writes playback and connection telemetry to
// InfluxDB v2.
//
// The client wraps influxdb-client-go's non-blocking write API:
// points are batched and flushed asynchronously so telemetry can never
// stall a fleet operation or a supervisor loop. Write errors surface
// through an optional error callback.
//
// Measurements:
//
//	playback          — per-device playback metrics (step intensity,
//	                    progress), tagged device_id/metric
//	state_transitions — device state changes, tagged device_id/from/to
//	connection        — reconnect events, tagged device_id
//
// The integration is optional; when disabled in config, Connect
// returns ErrDisabled and callers run without telemetry.
package influxdb
