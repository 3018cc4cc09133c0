// Package transport provides per-device wire access to haptic devices.
//
// Two wire variants share one logical contract: HTTP (request/response
// polling) and WebSocket (persistent socket with unsolicited status
// push). The Client interface hides the difference; callers pick a
// variant per device through the factory and never branch on it again.
//
// Wire protocol (JSON throughout):
//
//	POST /pattern  {"steps":[{"intensity":..,"duration":..}],"interval":..,"repeat_count":..}
//	GET  /status   → {"status":"ok","device_state":..,"is_playing":..,..,"tick":..}
//	POST /stop     → {"status":"ok","message":..}
//
// Over WebSocket the pattern body is sent as-is; "status" and "stop"
// are bare string commands. Status pushes carry {"type":"status",...}.
// A parse failure on either side yields an error response, never a
// connection drop.
package transport
