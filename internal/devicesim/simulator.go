package devicesim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
	"github.com/FujiiNoritsugu/haptic-core/internal/playback"
)

// Defaults applied by Config.withDefaults.
const (
	defaultTickInterval = 10 * time.Millisecond
	defaultPushInterval = 5 * time.Second
	defaultMaxSteps     = 32
	defaultWSPath       = "/ws"
)

// Logger is the minimal logging interface the simulator needs.
// A no-op implementation is used when none is provided.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the simulated device's settings.
type Config struct {
	Host string
	Port int

	// WSPath is the WebSocket endpoint path. Defaults to "/ws".
	WSPath string

	// TickInterval is the playback machine's tick period.
	TickInterval time.Duration

	// PushInterval is the period of unsolicited status pushes to
	// connected WebSocket clients, independent of state changes.
	PushInterval time.Duration

	// MaxPatternSteps bounds accepted pattern lengths. Defaults to 32.
	MaxPatternSteps int
}

func (c Config) withDefaults() Config {
	if c.WSPath == "" {
		c.WSPath = defaultWSPath
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.PushInterval <= 0 {
		c.PushInterval = defaultPushInterval
	}
	if c.MaxPatternSteps == 0 {
		c.MaxPatternSteps = defaultMaxSteps
	}
	return c
}

// statusFrame is the device's wire status shape, shared by HTTP
// responses (Status set), WebSocket pushes (Type set) and command
// acknowledgements.
type statusFrame struct {
	Type    string `json:"type,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	DeviceState   string `json:"device_state"`
	IsPlaying     bool   `json:"is_playing"`
	CurrentStep   *int   `json:"current_step,omitempty"`
	TotalSteps    *int   `json:"total_steps,omitempty"`
	CurrentRepeat *int   `json:"current_repeat,omitempty"`
	TotalRepeats  *int   `json:"total_repeats,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Tick          uint64 `json:"tick"`
}

// frameFrom maps a machine snapshot onto the wire shape. Progress
// fields are pointers so step zero of repeat zero still serialises;
// they are present exactly while a session is playing.
func frameFrom(st playback.Status) statusFrame {
	f := statusFrame{
		DeviceState:  string(st.State),
		IsPlaying:    st.IsPlaying,
		ErrorMessage: st.ErrorMessage,
		Tick:         st.Tick,
	}
	if st.IsPlaying {
		f.CurrentStep = intPtr(st.CurrentStep)
		f.TotalSteps = intPtr(st.TotalSteps)
		f.CurrentRepeat = intPtr(st.CurrentRepeat)
		f.TotalRepeats = intPtr(st.TotalRepeats)
	}
	return f
}

func intPtr(v int) *int { return &v }

// Per-peer write limits. A peer that stops reading fills its send
// buffer and has frames dropped rather than stalling the tick loop.
const (
	peerSendBuffer   = 16
	peerWriteTimeout = 5 * time.Second
)

// wsConn is one connected WebSocket peer. All outbound frames go
// through the send channel; writeLoop is the sole writer on the
// socket, so a slow reader never blocks the callers.
type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan []byte, peerSendBuffer),
	}
}

// writeLoop drains send until the channel closes or a write fails,
// then closes the socket to unblock the read loop.
func (c *wsConn) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		//nolint:errcheck // deadline errors surface on the write below
		c.conn.SetWriteDeadline(time.Now().Add(peerWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// trySend queues a frame without blocking, reporting whether it was
// accepted. Sends that race teardown are treated as drops.
func (c *wsConn) trySend(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops the write loop. Safe to call repeatedly.
func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Simulator is a single simulated haptic device.
type Simulator struct {
	cfg      Config
	logger   Logger
	machine  *playback.Machine
	actuator Actuator

	connMu sync.Mutex
	conns  map[*wsConn]struct{}

	server *http.Server
	cancel context.CancelFunc
	done   chan struct{}
}

var simUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// New creates a simulator. It does not listen until Start is called.
func New(cfg Config) *Simulator {
	s := &Simulator{
		cfg:     cfg.withDefaults(),
		logger:  noopLogger{},
		machine: playback.NewMachine(),
		conns:   make(map[*wsConn]struct{}),
		done:    make(chan struct{}),
	}
	s.actuator = NewLogActuator(s.logger)
	s.machine.SetOnChange(s.pushStatus)
	return s
}

// SetLogger sets the logger. Must be called before Start.
func (s *Simulator) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetActuator replaces the output sink. Must be called before Start.
func (s *Simulator) SetActuator(a Actuator) {
	if a != nil {
		s.actuator = a
	}
}

// Handler returns the device's HTTP handler. Exposed for tests; Start
// serves this same handler.
func (s *Simulator) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/pattern", s.handlePattern)
	r.Post("/stop", s.handleStop)
	r.Get("/status", s.handleStatus)
	r.Get(s.cfg.WSPath, s.handleWS)
	return r
}

// Start launches the tick loop and the HTTP listener.
func (s *Simulator) Start(ctx context.Context) error {
	var runCtx context.Context
	runCtx, s.cancel = context.WithCancel(ctx)

	go s.run(runCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("device server error", "error", err)
		}
	}()

	s.logger.Info("simulated device listening",
		"address", s.server.Addr,
		"tick_interval", s.cfg.TickInterval,
		"max_steps", s.cfg.MaxPatternSteps)
	return nil
}

// Close stops the tick loop and shuts the listener down.
func (s *Simulator) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status returns the machine's current status snapshot.
func (s *Simulator) Status() playback.Status {
	return s.machine.Status()
}

// run is the cooperative tick loop: one goroutine, no blocking calls
// inside a tick. Each tick advances the machine and forwards the
// current output level to the actuator; a second, slower ticker pushes
// status to WebSocket peers regardless of changes.
func (s *Simulator) run(ctx context.Context) {
	defer close(s.done)

	tick := time.NewTicker(s.cfg.TickInterval)
	defer tick.Stop()
	push := time.NewTicker(s.cfg.PushInterval)
	defer push.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.machine.Tick()
			s.actuator.Apply(s.machine.CurrentIntensity())
		case <-push.C:
			s.pushStatus(s.machine.Status())
		}
	}
}

// pushStatus broadcasts a status frame to every connected WebSocket
// peer. Installed as the machine's change observer, so it runs inside
// the tick path and must never block; frames to a saturated peer are
// dropped.
func (s *Simulator) pushStatus(st playback.Status) {
	frame := frameFrom(st)
	frame.Type = "status"
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("status frame marshal failed", "error", err)
		return
	}

	s.connMu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connMu.Unlock()

	for _, c := range conns {
		if !c.trySend(data) {
			s.logger.Debug("status push dropped", "reason", "peer send buffer full")
		}
	}
}

// acceptPattern validates and starts a pattern, returning the wire
// acknowledgement. Validation failures are device-level errors; the
// connection stays up.
func (s *Simulator) acceptPattern(data []byte) statusFrame {
	var p pattern.VibrationPattern
	if err := json.Unmarshal(data, &p); err != nil {
		return s.errorFrame("invalid JSON: " + err.Error())
	}
	if err := p.Validate(s.cfg.MaxPatternSteps); err != nil {
		return s.errorFrame(err.Error())
	}

	s.machine.Start(p)
	s.logger.Info("pattern accepted",
		"steps", len(p.Steps),
		"repeat_count", p.RepeatCount)

	frame := frameFrom(s.machine.Status())
	frame.Status = "ok"
	frame.Message = "pattern accepted"
	return frame
}

func (s *Simulator) errorFrame(msg string) statusFrame {
	frame := frameFrom(s.machine.Status())
	frame.Status = "error"
	frame.Message = msg
	return frame
}

func (s *Simulator) okFrame(msg string) statusFrame {
	frame := frameFrom(s.machine.Status())
	frame.Status = "ok"
	frame.Message = msg
	return frame
}

// ─── HTTP handlers ─────────────────────────────────────────────────

func (s *Simulator) handlePattern(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeFrame(w, s.errorFrame("reading body: "+err.Error()))
		return
	}
	writeFrame(w, s.acceptPattern(data))
}

func (s *Simulator) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.machine.Stop()
	writeFrame(w, s.okFrame("stopped"))
}

func (s *Simulator) handleStatus(w http.ResponseWriter, _ *http.Request) {
	frame := frameFrom(s.machine.Status())
	frame.Status = "ok"
	writeFrame(w, frame)
}

// maxBodyBytes caps pattern request bodies.
const maxBodyBytes = 64 << 10

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func writeFrame(w http.ResponseWriter, frame statusFrame) {
	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck // Best-effort write to response
	json.NewEncoder(w).Encode(frame)
}

// ─── WebSocket handler ─────────────────────────────────────────────

// handleWS upgrades and serves one controller connection. Commands
// arrive as bare strings ("status", "stop", "heartbeat") or as pattern
// JSON objects; anything unparseable gets an error frame back.
func (s *Simulator) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := simUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	peer := newWSConn(conn)
	s.connMu.Lock()
	s.conns[peer] = struct{}{}
	s.connMu.Unlock()
	go peer.writeLoop()
	s.logger.Debug("controller connected", "remote", conn.RemoteAddr())

	defer func() {
		s.connMu.Lock()
		delete(s.conns, peer)
		s.connMu.Unlock()
		peer.close()
		conn.Close()
		s.logger.Debug("controller disconnected", "remote", conn.RemoteAddr())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleWSMessage(peer, data)
	}
}

func (s *Simulator) handleWSMessage(peer *wsConn, data []byte) {
	var reply statusFrame

	switch string(data) {
	case "status":
		reply = frameFrom(s.machine.Status())
		reply.Type = "status"
	case "stop":
		s.machine.Stop()
		reply = s.okFrame("stopped")
	case "heartbeat":
		reply = s.okFrame("alive")
	default:
		reply = s.acceptPattern(data)
	}

	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("reply marshal failed", "error", err)
		return
	}
	if !peer.trySend(data) {
		s.logger.Debug("reply dropped", "reason", "peer send buffer full")
	}
}
