package transport

// DeviceState is the device-reported playback state, plus the
// host-synthesised states for devices the host cannot reach.
type DeviceState string

// Device states. The first three come off the wire; the last two are
// attached host-side by the connection supervisor.
const (
	StateIdle         DeviceState = "idle"
	StatePlaying      DeviceState = "playing"
	StateError        DeviceState = "error"
	StateDisconnected DeviceState = "disconnected"
	StateUnreachable  DeviceState = "unreachable"
)

// DeviceStatus is one device's published playback status. The progress
// pointers are nil unless the device is playing; ErrorMessage is empty
// unless State is StateError.
//
// Tick is the device machine's monotonically increasing tick counter.
// Consumers resolve racing updates (a push overtaking a polled
// response) by last-write-wins on Tick, not by arrival order. A status
// without a tick carries zero and is ordered by arrival.
type DeviceStatus struct {
	State         DeviceState `json:"device_state"`
	IsPlaying     bool        `json:"is_playing"`
	CurrentStep   *int        `json:"current_step,omitempty"`
	TotalSteps    *int        `json:"total_steps,omitempty"`
	CurrentRepeat *int        `json:"current_repeat,omitempty"`
	TotalRepeats  *int        `json:"total_repeats,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	Tick          uint64      `json:"tick,omitempty"`
}

// OnStatusFunc receives status updates: polled responses and, on the
// WebSocket variant, unsolicited pushes. The two are indistinguishable
// to the consumer.
type OnStatusFunc func(DeviceStatus)

// wireStatus is the raw status shape shared by HTTP responses
// ({"status":"ok",...}) and WebSocket frames ({"type":"status",...}).
type wireStatus struct {
	Status  string `json:"status,omitempty"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`

	DeviceState   string `json:"device_state"`
	IsPlaying     bool   `json:"is_playing"`
	CurrentStep   *int   `json:"current_step,omitempty"`
	TotalSteps    *int   `json:"total_steps,omitempty"`
	CurrentRepeat *int   `json:"current_repeat,omitempty"`
	TotalRepeats  *int   `json:"total_repeats,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Tick          uint64 `json:"tick,omitempty"`
}

// toDeviceStatus converts a wire frame into the public status type.
func (w *wireStatus) toDeviceStatus() DeviceStatus {
	return DeviceStatus{
		State:         DeviceState(w.DeviceState),
		IsPlaying:     w.IsPlaying,
		CurrentStep:   w.CurrentStep,
		TotalSteps:    w.TotalSteps,
		CurrentRepeat: w.CurrentRepeat,
		TotalRepeats:  w.TotalRepeats,
		ErrorMessage:  w.ErrorMessage,
		Tick:          w.Tick,
	}
}
