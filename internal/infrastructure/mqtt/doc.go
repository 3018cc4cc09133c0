// Package mqtt provides the MQTT client used to relay fleet status to
// a broker.
//
// The client wraps paho.mqtt.golang with connection management,
// automatic reconnection, subscription restoration after reconnect,
// and Last Will and Testament so subscribers can tell a crashed host
// apart from a gracefully stopped one.
//
// Topic scheme:
//
//	haptic/status/{device_id}  — retained per-device status snapshots
//	haptic/system/status       — host online/offline status (LWT)
//
// The relay itself is wired in cmd/hapticd: the fleet coordinator's
// snapshot stream is published here; this package stays free of domain
// types.
package mqtt
