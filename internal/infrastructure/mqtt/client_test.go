package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// newDisconnectedClient builds a client that was never connected, for
// exercising validation and state checks without a broker. Connection
// round-trips live in integration_test.go behind the integration tag.
func newDisconnectedClient() *Client {
	return &Client{
		subscriptions: make(map[string]subscription),
	}
}

func TestCloseNil(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestIsConnectedInitialState(t *testing.T) {
	c := newDisconnectedClient()
	if c.IsConnected() {
		t.Error("IsConnected() = true for a client that never connected")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := newDisconnectedClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublishEmptyTopic(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.Publish("haptic/status/x", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	c := newDisconnectedClient()
	payload := make([]byte, maxPayloadSize+1)
	if err := c.Publish("haptic/status/x", payload, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.Publish("haptic/status/x", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeEmptyTopic(t *testing.T) {
	c := newDisconnectedClient()
	err := c.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.Subscribe("haptic/status/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	c := newDisconnectedClient()
	err := c.Subscribe("haptic/status/+", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscription was tracked")
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := newDisconnectedClient()

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if c.HasSubscription("haptic/status/+") {
		t.Error("HasSubscription() = true for untracked topic")
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceStatus", topics.DeviceStatus("left-wrist"), "haptic/status/left-wrist"},
		{"AllDeviceStatuses", topics.AllDeviceStatuses(), "haptic/status/+"},
		{"DeviceEvent", topics.DeviceEvent("left-wrist"), "haptic/event/left-wrist"},
		{"SystemStatus", topics.SystemStatus(), "haptic/system/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"online":  buildOnlinePayload("haptic-core"),
		"offline": buildOfflinePayload("haptic-core"),
	} {
		var decoded map[string]string
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			t.Fatalf("%s payload is not valid JSON: %v", name, err)
		}
		if decoded["status"] != name {
			t.Errorf("%s payload status = %q", name, decoded["status"])
		}
		if decoded["client_id"] != "haptic-core" {
			t.Errorf("%s payload client_id = %q", name, decoded["client_id"])
		}
		if decoded["timestamp"] == "" {
			t.Errorf("%s payload missing timestamp", name)
		}
	}

	if !strings.Contains(buildOfflinePayload("x"), "graceful_shutdown") {
		t.Error("offline payload missing graceful_shutdown reason")
	}
}
