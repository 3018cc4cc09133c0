package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
	"github.com/FujiiNoritsugu/haptic-core/internal/transport"
)

// ConnState describes the supervisor's view of the device link.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"

	// StateUnreachable is terminal. The supervisor has exhausted its
	// reconnection budget and will not retry.
	StateUnreachable ConnState = "unreachable"
)

// Default supervision timings.
const (
	defaultInitialDelay      = 1 * time.Second
	defaultMaxDelay          = 30 * time.Second
	defaultMaxAttempts       = 10
	defaultHeartbeatInterval = 10 * time.Second
	defaultRequestTimeout    = 5 * time.Second
)

// Logger defines the logging interface used by the Supervisor.
// Compatible with *logging.Logger from internal/infrastructure/logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config carries supervision settings for one device.
type Config struct {
	// InitialDelay is the backoff delay after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// MaxAttempts is the number of consecutive connection failures
	// tolerated before the device is declared unreachable.
	MaxAttempts int

	// HeartbeatInterval is how often a connected device is polled
	// for status.
	HeartbeatInterval time.Duration

	// RequestTimeout bounds each connect and status exchange.
	RequestTimeout time.Duration
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return c
}

// Snapshot is a point-in-time copy of the supervisor's device view.
type Snapshot struct {
	DeviceID string
	State    ConnState

	// Status is the last status the device reported. Zero until the
	// first successful exchange.
	Status transport.DeviceStatus

	// LastSeen is when Status was last refreshed.
	LastSeen time.Time

	// Attempts is the current consecutive connection failure count.
	Attempts int
}

// OnStatusFunc observes snapshot changes: connection state transitions
// and accepted device status updates.
type OnStatusFunc func(snap Snapshot)

// Supervisor owns one device's transport client and keeps its
// connection alive.
type Supervisor struct {
	deviceID string
	client   transport.Client
	cfg      Config
	logger   Logger

	mu       sync.Mutex
	state    ConnState
	status   transport.DeviceStatus
	lastSeen time.Time
	onStatus OnStatusFunc

	attempts atomic.Int32

	// dropCh is signalled when an operation observes a connection
	// failure, waking the heartbeat loop to start reconnecting.
	dropCh chan struct{}

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	// sleep waits for the backoff delay or context cancellation.
	// Swappable so backoff behaviour can be tested without timing.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a supervisor for the given device and client.
// Call SetLogger and SetOnStatus before Start.
func New(deviceID string, client transport.Client, cfg Config) *Supervisor {
	return &Supervisor{
		deviceID: deviceID,
		client:   client,
		cfg:      cfg.withDefaults(),
		logger:   noopLogger{},
		state:    StateDisconnected,
		dropCh:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		sleep:    sleepCtx,
	}
}

// SetLogger sets the logger. Must be called before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetOnStatus installs the snapshot observer. Must be called before
// Start. The callback runs on supervisor goroutines and must not
// block.
func (s *Supervisor) SetOnStatus(fn OnStatusFunc) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

// Start begins supervision in a background goroutine. Subsequent calls
// are no-ops.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.client.SetOnStatus(s.applyStatus)
		go s.run(ctx)
	})
}

// Stop terminates supervision and closes the client. Blocks until the
// supervision goroutine has exited. Safe to call repeatedly.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		} else {
			// Never started; nothing will close done.
			s.startOnce.Do(func() { close(s.done) })
		}
		<-s.done
		s.client.Close()
	})
}

// Done is closed when the supervision loop exits, either from Stop or
// from the device going unreachable.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the current device view.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Supervisor) snapshotLocked() Snapshot {
	return Snapshot{
		DeviceID: s.deviceID,
		State:    s.state,
		Status:   s.status,
		LastSeen: s.lastSeen,
		Attempts: int(s.attempts.Load()),
	}
}

// SendPattern forwards a pattern to the device. Returns
// transport.ErrNotConnected when the link is down.
func (s *Supervisor) SendPattern(ctx context.Context, p pattern.VibrationPattern) error {
	if s.State() != StateConnected {
		return transport.ErrNotConnected
	}
	err := s.client.SendPattern(ctx, p)
	s.noteResult(err)
	return err
}

// SendStop forwards a stop request to the device.
func (s *Supervisor) SendStop(ctx context.Context) error {
	if s.State() != StateConnected {
		return transport.ErrNotConnected
	}
	err := s.client.SendStop(ctx)
	s.noteResult(err)
	return err
}

// RequestStatus polls the device and refreshes the mirror on success.
func (s *Supervisor) RequestStatus(ctx context.Context) (transport.DeviceStatus, error) {
	if s.State() != StateConnected {
		return transport.DeviceStatus{}, transport.ErrNotConnected
	}
	st, err := s.client.RequestStatus(ctx)
	s.noteResult(err)
	if err != nil {
		return transport.DeviceStatus{}, err
	}
	s.applyStatus(st)
	return st, nil
}

// noteResult wakes the supervision loop when an operation hit a
// connection failure.
func (s *Supervisor) noteResult(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, transport.ErrConnection) || errors.Is(err, transport.ErrNotConnected) {
		select {
		case s.dropCh <- struct{}{}:
		default:
		}
	}
}

// run is the supervision loop: connect, resync, heartbeat, backoff.
func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}

		s.setState(StateConnecting)
		if err := s.connect(ctx); err != nil {
			if ctx.Err() != nil {
				s.setState(StateDisconnected)
				return
			}
			n := int(s.attempts.Add(1))
			s.logger.Warn("device connect failed",
				"device_id", s.deviceID, "attempt", n, "error", err)
			if n >= s.cfg.MaxAttempts {
				s.setState(StateUnreachable)
				s.logger.Error("device unreachable, giving up",
					"device_id", s.deviceID, "attempts", n)
				return
			}
			s.setState(StateDisconnected)
			if !s.sleep(ctx, backoffDelay(n, s.cfg.InitialDelay, s.cfg.MaxDelay)) {
				return
			}
			continue
		}

		s.attempts.Store(0)
		s.resetTickGuard()
		s.setState(StateConnected)
		s.logger.Info("device connected", "device_id", s.deviceID)

		// Resync with a status poll. The device keeps playing through
		// a network drop, so its reported state wins; no pattern is
		// ever replayed from this side.
		s.resync(ctx)

		if !s.supervise(ctx) {
			s.setState(StateDisconnected)
			s.client.Close()
			return
		}

		s.logger.Warn("device connection lost", "device_id", s.deviceID)
		s.setState(StateDisconnected)
		s.client.Close()
	}
}

func (s *Supervisor) connect(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return s.client.Connect(cctx)
}

func (s *Supervisor) resync(ctx context.Context) {
	if err := s.poll(ctx); err != nil {
		s.logger.Warn("status resync failed",
			"device_id", s.deviceID, "error", err)
	}
}

// supervise polls the connected device until the link drops. Returns
// false when the context was cancelled, true when a reconnect is due.
func (s *Supervisor) supervise(ctx context.Context) bool {
	// Discard any drop signal left over from the previous connection.
	select {
	case <-s.dropCh:
	default:
	}

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.dropCh:
			return true
		case <-ticker.C:
			err := s.poll(ctx)
			switch {
			case err == nil:
			case errors.Is(err, transport.ErrConnection),
				errors.Is(err, transport.ErrNotConnected):
				return true
			default:
				// Protocol or device errors do not indicate a dead
				// link; keep the connection and log.
				s.logger.Warn("heartbeat poll error",
					"device_id", s.deviceID, "error", err)
			}
		}
	}
}

func (s *Supervisor) poll(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	st, err := s.client.RequestStatus(pctx)
	if err != nil {
		return err
	}
	s.applyStatus(st)
	return nil
}

// resetTickGuard clears the staleness threshold. Called on every new
// connection so a device that restarted, with its tick counter back
// near zero, is not mistaken for stale input.
func (s *Supervisor) resetTickGuard() {
	s.mu.Lock()
	s.status.Tick = 0
	s.mu.Unlock()
}

// applyStatus refreshes the mirror with last-write-wins semantics: a
// status whose tick is behind the mirror is stale and discarded.
func (s *Supervisor) applyStatus(st transport.DeviceStatus) {
	s.mu.Lock()
	if st.Tick < s.status.Tick {
		s.mu.Unlock()
		return
	}
	s.status = st
	s.lastSeen = time.Now()
	snap := s.snapshotLocked()
	fn := s.onStatus
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

func (s *Supervisor) setState(state ConnState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	snap := s.snapshotLocked()
	fn := s.onStatus
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// backoffDelay returns the delay to wait after the given consecutive
// failure count: initial doubled per failure, capped at max.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		d = max
	}
	return d
}

// sleepCtx waits for d or context cancellation, reporting whether the
// full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
