// Package devicesim implements a simulated haptic device: the
// device-facing HTTP and WebSocket protocol served around a playback
// machine driven by a cooperative tick loop.
//
// The simulator speaks exactly what the transport package's clients
// expect. Over HTTP: POST /pattern, POST /stop, GET /status, each
// answered with a {"status":"ok"|"error",...} body carrying the
// current playback status. Over the WebSocket at /ws: pattern JSON
// objects, and the bare commands "status", "stop" and "heartbeat";
// status frames are tagged {"type":"status",...} and are also pushed
// unsolicited on every machine state change and on a fixed interval.
//
// Malformed input is answered with an error frame, never by dropping
// the connection.
//
// Actuator output is injected via the Actuator interface; the default
// implementation only logs intensity changes.
package devicesim
