// Package supervisor maintains the connection lifecycle for a single
// haptic device.
//
// Each registered device gets one Supervisor, which owns the device's
// transport client and drives it through a small state machine:
//
//	disconnected -> connecting -> connected
//	                           -> unreachable (terminal)
//
// On connection loss the supervisor retries with exponential backoff,
// doubling from the initial delay up to the configured cap. After the
// configured number of consecutive failures the device is declared
// unreachable and supervision stops until the device is re-registered
// or the supervisor is restarted.
//
// After a successful reconnect the supervisor resynchronises by polling
// the device's status. It never replays a previously sent pattern; the
// device's own playback state is the source of truth.
//
// The supervisor keeps a last-known status mirror guarded by the
// device's monotonic tick counter, so out-of-order status frames from
// an unreliable link cannot roll the mirror backwards.
package supervisor
