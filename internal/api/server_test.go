package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"github.com/FujiiNoritsugu/haptic-core/internal/device"
	"github.com/FujiiNoritsugu/haptic-core/internal/fleet"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/config"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/logging"
	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
	"github.com/FujiiNoritsugu/haptic-core/internal/supervisor"
	"github.com/FujiiNoritsugu/haptic-core/internal/transport"
)

// fakeClient is an always-reachable transport client for fleet-backed
// endpoint tests.
type fakeClient struct {
	patternCalls atomic.Int64
	stopCalls    atomic.Int64
	connected    atomic.Bool
}

func (f *fakeClient) Connect(context.Context) error {
	f.connected.Store(true)
	return nil
}

func (f *fakeClient) Close() error {
	f.connected.Store(false)
	return nil
}

func (f *fakeClient) SendPattern(context.Context, pattern.VibrationPattern) error {
	f.patternCalls.Add(1)
	return nil
}

func (f *fakeClient) SendStop(context.Context) error {
	f.stopCalls.Add(1)
	return nil
}

func (f *fakeClient) RequestStatus(context.Context) (transport.DeviceStatus, error) {
	return transport.DeviceStatus{State: transport.StateIdle, Tick: 1}, nil
}

func (f *fakeClient) SetOnStatus(transport.OnStatusFunc) {}

func (f *fakeClient) Connected() bool { return f.connected.Load() }

// testServer creates a Server with a real device registry backed by
// in-memory SQLite and a fleet coordinator using fake transports.
func testServer(t *testing.T) (*Server, *device.Registry, map[string]*fakeClient) {
	t.Helper()

	db := setupTestDB(t)
	repo := device.NewSQLiteRepository(db)
	registry := device.NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	clients := make(map[string]*fakeClient)
	coord := fleet.New(registry, supervisor.Config{
		InitialDelay:      time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		MaxAttempts:       2,
		HeartbeatInterval: time.Hour,
		RequestTimeout:    time.Second,
	})
	coord.SetClientFactory(func(desc *device.Descriptor) (transport.Client, error) {
		c, ok := clients[desc.ID]
		if !ok {
			c = &fakeClient{}
			clients[desc.ID] = c
		}
		return c, nil
	})
	t.Cleanup(coord.Close)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   log,
		Registry: registry,
		Fleet:    coord,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	srv.hub = NewHub(srv.wsCfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return srv, registry, clients
}

// setupTestDB creates an in-memory SQLite database with the devices schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			ws_path TEXT NOT NULL DEFAULT '/ws',
			transport TEXT NOT NULL DEFAULT 'websocket',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX idx_devices_name ON devices(name);
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// registerDevice adds a device directly through the registry.
func registerDevice(t *testing.T, registry *device.Registry, id string) {
	t.Helper()
	d := &device.Descriptor{
		ID:   id,
		Name: "wrist " + id,
		Host: "127.0.0.1",
		Port: 9000,
	}
	if err := registry.Register(context.Background(), d); err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestNotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Device CRUD Tests ─────────────────────────────────────────────

func TestListDevices_Empty(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if int(resp["count"].(float64)) != 0 {
		t.Errorf("count = %v, want 0", resp["count"])
	}
}

func TestRegisterAndGetDevice(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"name": "left wrist", "host": "192.168.1.40", "port": 8000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created device.Descriptor
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated device ID")
	}
	if created.Transport != device.TransportWebSocket {
		t.Errorf("transport = %q, want default websocket", created.Transport)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+created.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", w.Code, http.StatusOK)
	}

	var fetched device.Descriptor
	if err := json.Unmarshal(w.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fetched.Name != "left wrist" {
		t.Errorf("name = %q, want %q", fetched.Name, "left wrist")
	}
}

func TestRegisterDevice_Duplicate(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")

	body := `{"id": "dev-1", "name": "dupe", "host": "192.168.1.41", "port": 8000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestRegisterDevice_Invalid(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	// Missing host and port
	body := `{"name": "incomplete"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected non-empty error field")
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/ghost", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateDevice(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")

	body := `{"name": "renamed", "host": "192.168.1.50", "port": 8100}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/devices/dev-1", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	got, err := registry.Get(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "renamed" || got.Port != 8100 {
		t.Errorf("descriptor = %+v, want renamed/8100", got)
	}
}

func TestUnregisterDevice(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/devices/dev-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusOK)
	}
	if registry.Count() != 0 {
		t.Errorf("registry count = %d, want 0", registry.Count())
	}

	// A second delete reports not found
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/devices/dev-1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Fleet Lifecycle Tests ─────────────────────────────────────────

func TestInitializeDevices(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")
	registerDevice(t, registry, "dev-2")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/initialize", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Results map[string]fleet.Result `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d entries, want 2", len(resp.Results))
	}
	for id, res := range resp.Results {
		if !res.OK {
			t.Errorf("device %s: ok = false, err = %q", id, res.Err)
		}
	}
}

func TestInitializeDevices_EmptyFleet(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/initialize", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("empty fleet status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if resp.Error != "no devices to address" {
		t.Errorf("error = %q, want %q", resp.Error, "no devices to address")
	}
}

func TestDevicesStatus(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")

	// Bring the device up first
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/initialize", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("initialize status = %d; body: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices/status?device_id=dev-1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Results map[string]fleet.Result `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	res, ok := resp.Results["dev-1"]
	if !ok {
		t.Fatal("expected dev-1 in results")
	}
	if !res.OK || res.Status == nil {
		t.Errorf("result = %+v, want ok with status", res)
	}
}

func TestShutdownDevices_TargetsSubset(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")
	registerDevice(t, registry, "dev-2")

	body := `{"device_ids": ["dev-1"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/shutdown", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Results map[string]fleet.Result `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %d entries, want 1", len(resp.Results))
	}
	if _, ok := resp.Results["dev-1"]; !ok {
		t.Error("expected dev-1 in results")
	}
}

// ─── Vibration Tests ───────────────────────────────────────────────

func initDevices(t *testing.T, router http.Handler) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/initialize", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("initialize status = %d; body: %s", w.Code, w.Body.String())
	}
}

func TestVibration_CompilesAndDispatches(t *testing.T) {
	srv, registry, clients := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")
	initDevices(t, router)

	body := `{"emotion": {"joy": 0.9, "fun": 0.1, "anger": 0.0, "sad": 0.0}, "emotion_category": "joy"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vibration", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Results map[string]fleet.Result  `json:"results"`
		Pattern pattern.VibrationPattern `json:"pattern"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res := resp.Results["dev-1"]; !res.OK {
		t.Errorf("dev-1 result = %+v, want ok", res)
	}
	if len(resp.Pattern.Steps) == 0 {
		t.Error("expected compiled pattern in response")
	}
	if got := clients["dev-1"].patternCalls.Load(); got != 1 {
		t.Errorf("pattern sends = %d, want 1", got)
	}
}

func TestVibration_InvalidBody(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vibration", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestVibrationPattern_Raw(t *testing.T) {
	srv, registry, clients := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")
	initDevices(t, router)

	body := `{
		"pattern": {
			"steps": [{"intensity": 80, "duration": 200}, {"intensity": 0, "duration": 100}],
			"interval": 50,
			"repeat_count": 2
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vibration/pattern", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := clients["dev-1"].patternCalls.Load(); got != 1 {
		t.Errorf("pattern sends = %d, want 1", got)
	}
}

func TestVibrationPattern_MissingPattern(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vibration/pattern", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestVibrationPattern_RejectsInvalid(t *testing.T) {
	srv, registry, _ := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")

	// Negative duration fails validation
	body := `{"pattern": {"steps": [{"intensity": 50, "duration": -5}]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vibration/pattern", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if resp.Details["reason"] == nil {
		t.Error("expected validation reason in details")
	}
}

func TestVibrationStop(t *testing.T) {
	srv, registry, clients := testServer(t)
	router := srv.buildRouter()
	registerDevice(t, registry, "dev-1")
	initDevices(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vibration/stop", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := clients["dev-1"].stopCalls.Load(); got != 1 {
		t.Errorf("stop sends = %d, want 1", got)
	}
}

// ─── WebSocket Tests ───────────────────────────────────────────────

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	srv, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn := dialWS(t, ts)

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDeviceStatus}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read subscribe ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v, want response with id 1", ack)
	}

	// Wait for registration before broadcasting
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}

	srv.hub.Broadcast(ChannelDeviceStatus, map[string]any{"device_id": "dev-1", "conn_state": "connected"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt WSMessage
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Type != WSTypeEvent || evt.EventType != ChannelDeviceStatus {
		t.Errorf("event = %+v, want %s event", evt, ChannelDeviceStatus)
	}
	payload, ok := evt.Payload.(map[string]any)
	if !ok || payload["device_id"] != "dev-1" {
		t.Errorf("payload = %+v, want device_id dev-1", evt.Payload)
	}
}

func TestWebSocket_UnsubscribedClientGetsNothing(t *testing.T) {
	srv, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn := dialWS(t, ts)

	// Ping to confirm the connection is live without subscribing
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong WSMessage
	if err := conn.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != WSTypePong {
		t.Fatalf("reply = %+v, want pong", pong)
	}

	srv.hub.Broadcast(ChannelDeviceStatus, map[string]any{"device_id": "dev-1"})

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err == nil {
		t.Errorf("expected no message, got %+v", msg)
	}
}

func TestWebSocket_UnknownMessageType(t *testing.T) {
	srv, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn := dialWS(t, ts)

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != WSTypeError {
		t.Errorf("reply type = %q, want error", msg.Type)
	}
}
