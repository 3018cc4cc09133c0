package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
)

// fakeHTTPDevice serves the device-side REST protocol for tests.
func fakeHTTPDevice(t *testing.T) (*httptest.Server, *fakeDeviceState) {
	t.Helper()

	state := &fakeDeviceState{deviceState: "idle"}

	mux := http.NewServeMux()
	mux.HandleFunc("/pattern", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var p pattern.VibrationPattern
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil || len(p.Steps) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "error", "message": "invalid pattern",
			})
			return
		}
		state.deviceState = "playing"
		state.patterns++
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "message": "pattern accepted"})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		state.statusPolls++
		resp := map[string]any{
			"status":       "ok",
			"device_state": state.deviceState,
			"is_playing":   state.deviceState == "playing",
			"tick":         state.tick,
		}
		if state.deviceState == "playing" {
			resp["current_step"] = 1
			resp["total_steps"] = 2
			resp["current_repeat"] = 0
			resp["total_repeats"] = 3
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		state.deviceState = "idle"
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "message": "stopped"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, state
}

type fakeDeviceState struct {
	deviceState string
	tick        uint64
	patterns    int
	statusPolls int
}

func testPattern() pattern.VibrationPattern {
	return pattern.VibrationPattern{
		Steps:       []pattern.VibrationStep{{Intensity: 50, DurationMS: 200}},
		IntervalMS:  100,
		RepeatCount: 2,
	}
}

// TestHTTPClientConnect verifies the status probe marks the client connected.
func TestHTTPClientConnect(t *testing.T) {
	srv, _ := fakeHTTPDevice(t)
	c := NewHTTPClient(srv.URL, Config{})

	if c.Connected() {
		t.Error("client should start disconnected")
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.Connected() {
		t.Error("client should be connected after probe")
	}
}

// TestHTTPClientConnectUnreachable verifies connection errors are classified.
func TestHTTPClientConnectUnreachable(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", Config{})

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Connect() error = %v, want ErrConnection", err)
	}
	if c.Connected() {
		t.Error("client should not be connected after failure")
	}
}

// TestHTTPClientSendPattern verifies pattern delivery and ack handling.
func TestHTTPClientSendPattern(t *testing.T) {
	srv, state := fakeHTTPDevice(t)
	c := NewHTTPClient(srv.URL, Config{})

	if err := c.SendPattern(context.Background(), testPattern()); err != nil {
		t.Fatalf("SendPattern() error = %v", err)
	}
	if state.patterns != 1 {
		t.Errorf("device received %d patterns, want 1", state.patterns)
	}
}

// TestHTTPClientDeviceError verifies device-reported errors surface
// verbatim as ErrDevice.
func TestHTTPClientDeviceError(t *testing.T) {
	srv, _ := fakeHTTPDevice(t)
	c := NewHTTPClient(srv.URL, Config{})

	err := c.SendPattern(context.Background(), pattern.VibrationPattern{})
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("SendPattern() error = %v, want ErrDevice", err)
	}
	if got := err.Error(); !strings.Contains(got, "invalid pattern") {
		t.Errorf("error %q should carry the device message", got)
	}
}

// TestHTTPClientRequestStatus verifies status decoding including the
// playing-only progress fields.
func TestHTTPClientRequestStatus(t *testing.T) {
	srv, state := fakeHTTPDevice(t)
	c := NewHTTPClient(srv.URL, Config{})

	status, err := c.RequestStatus(context.Background())
	if err != nil {
		t.Fatalf("RequestStatus() error = %v", err)
	}
	if status.State != StateIdle || status.IsPlaying {
		t.Errorf("status = %+v, want idle", status)
	}
	if status.CurrentStep != nil {
		t.Error("idle status should omit progress fields")
	}

	state.deviceState = "playing"
	state.tick = 42

	status, err = c.RequestStatus(context.Background())
	if err != nil {
		t.Fatalf("RequestStatus() error = %v", err)
	}
	if status.State != StatePlaying || !status.IsPlaying {
		t.Errorf("status = %+v, want playing", status)
	}
	if status.CurrentStep == nil || *status.CurrentStep != 1 {
		t.Errorf("current step = %v, want 1", status.CurrentStep)
	}
	if status.Tick != 42 {
		t.Errorf("tick = %d, want 42", status.Tick)
	}
}

// TestHTTPClientStatusObserver verifies polled responses feed the
// observer so both variants expose one stream.
func TestHTTPClientStatusObserver(t *testing.T) {
	srv, _ := fakeHTTPDevice(t)
	c := NewHTTPClient(srv.URL, Config{})

	var observed []DeviceStatus
	c.SetOnStatus(func(s DeviceStatus) {
		observed = append(observed, s)
	})

	if _, err := c.RequestStatus(context.Background()); err != nil {
		t.Fatalf("RequestStatus() error = %v", err)
	}
	if len(observed) != 1 {
		t.Errorf("observer saw %d updates, want 1", len(observed))
	}
}

// TestHTTPClientSendStop verifies the stop round trip.
func TestHTTPClientSendStop(t *testing.T) {
	srv, state := fakeHTTPDevice(t)
	c := NewHTTPClient(srv.URL, Config{})

	if err := c.SendPattern(context.Background(), testPattern()); err != nil {
		t.Fatalf("SendPattern() error = %v", err)
	}
	if err := c.SendStop(context.Background()); err != nil {
		t.Fatalf("SendStop() error = %v", err)
	}
	if state.deviceState != "idle" {
		t.Errorf("device state = %q, want idle after stop", state.deviceState)
	}
}

// TestHTTPClientMalformedResponse verifies non-JSON responses are
// protocol errors, not connection errors.
func TestHTTPClientMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClient(srv.URL, Config{})
	_, err := c.RequestStatus(context.Background())
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("RequestStatus() error = %v, want ErrProtocol", err)
	}
}
