package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
)

// maxResponseBytes bounds device response reads. Device responses are
// small JSON objects; anything bigger is a protocol violation.
const maxResponseBytes = 64 * 1024

// HTTPClient talks to a device over its REST endpoints. There is no
// persistent connection; Connect probes the status endpoint to verify
// reachability. Push callbacks never fire on this variant.
type HTTPClient struct {
	base      string
	httpc     *http.Client
	connected atomic.Bool
	onStatus  OnStatusFunc
}

// NewHTTPClient creates a client for the device at base, e.g.
// "http://192.168.1.50:80".
func NewHTTPClient(base string, cfg Config) *HTTPClient {
	cfg = cfg.withDefaults()
	return &HTTPClient{
		base: base,
		httpc: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// SetOnStatus installs the status observer. It fires for polled
// responses so consumers see one uniform stream across variants.
func (c *HTTPClient) SetOnStatus(fn OnStatusFunc) {
	c.onStatus = fn
}

// Connect probes GET /status to verify the device is reachable.
func (c *HTTPClient) Connect(ctx context.Context) error {
	if _, err := c.RequestStatus(ctx); err != nil {
		return err
	}
	return nil
}

// Close marks the client disconnected. HTTP holds no socket to release.
func (c *HTTPClient) Close() error {
	c.connected.Store(false)
	return nil
}

// Connected reports whether the last exchange succeeded.
func (c *HTTPClient) Connected() bool {
	return c.connected.Load()
}

// SendPattern POSTs the pattern to /pattern.
func (c *HTTPClient) SendPattern(ctx context.Context, p pattern.VibrationPattern) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: encoding pattern: %v", ErrProtocol, err)
	}
	_, err = c.exchange(ctx, http.MethodPost, "/pattern", body)
	return err
}

// SendStop POSTs to /stop.
func (c *HTTPClient) SendStop(ctx context.Context) error {
	_, err := c.exchange(ctx, http.MethodPost, "/stop", nil)
	return err
}

// RequestStatus GETs /status and feeds the observer.
func (c *HTTPClient) RequestStatus(ctx context.Context) (DeviceStatus, error) {
	wire, err := c.exchange(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return DeviceStatus{}, err
	}

	status := wire.toDeviceStatus()
	if c.onStatus != nil {
		c.onStatus(status)
	}
	return status, nil
}

// exchange performs one request/response round trip and classifies the
// outcome per the error taxonomy.
func (c *HTTPClient) exchange(ctx context.Context, method, path string, body []byte) (*wireStatus, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrProtocol, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.connected.Store(false)
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.connected.Store(false)
		return nil, fmt.Errorf("%w: reading response: %v", ErrConnection, err)
	}

	var wire wireStatus
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrProtocol, err)
	}

	// The exchange itself succeeded, whatever the device answered.
	c.connected.Store(true)

	if wire.Status == "error" {
		return nil, fmt.Errorf("%w: %s", ErrDevice, wire.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected HTTP %d", ErrProtocol, resp.StatusCode)
	}

	return &wire, nil
}
