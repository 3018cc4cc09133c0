package influxdb_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/config"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/influxdb"
)

// fakeInflux is a minimal InfluxDB v2 endpoint: it answers pings and
// accepts line-protocol writes, counting them.
type fakeInflux struct {
	server *httptest.Server
	writes atomic.Int32
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/write") {
			f.writes.Add(1)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.server.URL,
		Token:         "haptic-dev-token",
		Org:           "haptic",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnectDisabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachableServer(t *testing.T) {
	fake := newFakeInflux(t)
	cfg := fake.config()
	fake.server.Close()

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndClose(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := influxdb.Connect(fake.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestConnectDefaultBatchSettings(t *testing.T) {
	fake := newFakeInflux(t)
	cfg := fake.config()
	cfg.BatchSize = 0
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

func TestHealthCheck(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := influxdb.Connect(fake.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := influxdb.Connect(fake.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}
}

func TestWritesAreFlushedOnClose(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := influxdb.Connect(fake.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WritePlaybackMetric("left-wrist", "step_intensity", 80)
	client.WriteStateTransition("left-wrist", "idle", "playing")
	client.WriteReconnect("left-wrist", 3)
	client.WritePoint("fleet_stats",
		map[string]string{"host": "hapticd-test"},
		map[string]interface{}{"devices_connected": 2})

	client.Close()

	if fake.writes.Load() == 0 {
		t.Error("no write requests reached the server after Close flush")
	}
}

func TestWritesAfterCloseAreNoOps(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := influxdb.Connect(fake.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	// Must not panic or block.
	client.WritePlaybackMetric("left-wrist", "step_intensity", 40)
	client.WriteStateTransition("left-wrist", "playing", "idle")
	client.WriteReconnect("left-wrist", 1)
}

func TestCloseNil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
