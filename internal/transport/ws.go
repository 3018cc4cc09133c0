package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
)

// WebSocket commands sent as bare strings.
const (
	wsCommandStatus = "status"
	wsCommandStop   = "stop"
)

// WSClient holds a persistent socket to the device. Commands are
// serialised one at a time; a background read pump demultiplexes
// command acknowledgements from unsolicited status pushes.
type WSClient struct {
	url string
	cfg Config

	mu   sync.Mutex // guards conn and writes
	conn *websocket.Conn
	done chan struct{} // closed when the read pump exits

	reqMu    sync.Mutex // one outstanding request at a time
	acks     chan wireStatus
	statuses chan DeviceStatus

	connected atomic.Bool
	onStatus  OnStatusFunc
}

// NewWSClient creates a client for the device socket at url, e.g.
// "ws://192.168.1.50:80/ws". The connection opens on Connect.
func NewWSClient(url string, cfg Config) *WSClient {
	return &WSClient{
		url: url,
		cfg: cfg.withDefaults(),
	}
}

// SetOnStatus installs the status observer. It receives polled
// responses and unsolicited pushes alike. Must be called before Connect.
func (c *WSClient) SetOnStatus(fn OnStatusFunc) {
	c.onStatus = fn
}

// Connect dials the device. Reconnecting an already-connected client
// is a no-op; after a drop, calling Connect again opens a fresh socket.
func (c *WSClient) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dialling %s: %v", ErrConnection, c.url, err)
	}

	done := make(chan struct{})
	acks := make(chan wireStatus, 1)
	statuses := make(chan DeviceStatus, 1)

	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.acks = acks
	c.statuses = statuses
	c.mu.Unlock()
	c.connected.Store(true)

	go c.readPump(conn, done, acks, statuses)
	return nil
}

// Close shuts the socket. Safe to call repeatedly.
func (c *WSClient) Close() error {
	c.connected.Store(false)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Connected reports whether the socket is open.
func (c *WSClient) Connected() bool {
	return c.connected.Load()
}

// SendPattern sends the pattern JSON and waits for the command ack.
func (c *WSClient) SendPattern(ctx context.Context, p pattern.VibrationPattern) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: encoding pattern: %v", ErrProtocol, err)
	}
	_, err = c.command(ctx, body)
	return err
}

// SendStop sends the bare "stop" command and waits for the ack.
func (c *WSClient) SendStop(ctx context.Context) error {
	_, err := c.command(ctx, []byte(wsCommandStop))
	return err
}

// RequestStatus sends the bare "status" command and waits for a status
// frame. An unsolicited push racing the response satisfies the request;
// the two are equivalent to the caller.
func (c *WSClient) RequestStatus(ctx context.Context) (DeviceStatus, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	c.mu.Lock()
	statuses := c.statuses
	done := c.done
	c.mu.Unlock()

	if !c.connected.Load() || statuses == nil {
		return DeviceStatus{}, ErrNotConnected
	}

	// Drop any stale buffered status so the wait below sees a frame
	// produced after the request.
	select {
	case <-statuses:
	default:
	}

	if err := c.write([]byte(wsCommandStatus)); err != nil {
		return DeviceStatus{}, err
	}

	select {
	case status := <-statuses:
		return status, nil
	case <-done:
		return DeviceStatus{}, fmt.Errorf("%w: connection lost", ErrConnection)
	case <-ctx.Done():
		return DeviceStatus{}, fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
	case <-time.After(c.cfg.RequestTimeout):
		return DeviceStatus{}, fmt.Errorf("%w: status request timed out", ErrConnection)
	}
}

// command sends one frame and waits for its acknowledgement.
func (c *WSClient) command(ctx context.Context, payload []byte) (wireStatus, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	c.mu.Lock()
	acks := c.acks
	done := c.done
	c.mu.Unlock()

	if !c.connected.Load() || acks == nil {
		return wireStatus{}, ErrNotConnected
	}

	// Discard a stale ack from a previously timed-out command.
	select {
	case <-acks:
	default:
	}

	if err := c.write(payload); err != nil {
		return wireStatus{}, err
	}

	select {
	case ack := <-acks:
		if ack.Status == "error" {
			return wireStatus{}, fmt.Errorf("%w: %s", ErrDevice, ack.Message)
		}
		return ack, nil
	case <-done:
		return wireStatus{}, fmt.Errorf("%w: connection lost", ErrConnection)
	case <-ctx.Done():
		return wireStatus{}, fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
	case <-time.After(c.cfg.RequestTimeout):
		return wireStatus{}, fmt.Errorf("%w: command timed out", ErrConnection)
	}
}

// write sends a text frame under the write lock with a deadline.
func (c *WSClient) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// readPump reads frames until the socket drops, routing status frames
// and command acks to their consumers. It owns the done channel: when
// it exits, every pending wait unblocks with a connection error.
func (c *WSClient) readPump(conn *websocket.Conn, done chan struct{}, acks chan wireStatus, statuses chan DeviceStatus) {
	defer func() {
		c.connected.Store(false)
		close(done)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var wire wireStatus
		if err := json.Unmarshal(data, &wire); err != nil {
			// Malformed frames are ignored rather than dropping the
			// connection; the device does the same for our side.
			continue
		}

		if wire.Type == wsCommandStatus {
			status := wire.toDeviceStatus()
			if c.onStatus != nil {
				c.onStatus(status)
			}
			// Keep only the freshest status buffered for a waiter.
			select {
			case <-statuses:
			default:
			}
			select {
			case statuses <- status:
			default:
			}
			continue
		}

		if wire.Status != "" {
			select {
			case acks <- wire:
			default:
			}
		}
	}
}
