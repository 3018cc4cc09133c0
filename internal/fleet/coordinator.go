package fleet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/FujiiNoritsugu/haptic-core/internal/device"
	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
	"github.com/FujiiNoritsugu/haptic-core/internal/supervisor"
	"github.com/FujiiNoritsugu/haptic-core/internal/transport"
)

// ErrNoDevices is returned when a fleet operation has no target: the
// registry is empty, or every requested id is unknown.
var ErrNoDevices = errors.New("fleet: no devices to address")

// connectPollInterval is how often Initialize re-checks a device that
// is still connecting.
const connectPollInterval = 20 * time.Millisecond

// Logger defines the logging interface used by the Coordinator.
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

// Result is the per-device outcome of a fleet operation.
type Result struct {
	OK  bool   `json:"ok"`
	Err string `json:"error,omitempty"`

	// Status carries the device's status where the operation yields
	// one (Status, and successful sends that refreshed the mirror).
	Status *transport.DeviceStatus `json:"status,omitempty"`
}

// ClientFactory builds a transport client for a descriptor. Swappable
// in tests.
type ClientFactory func(desc *device.Descriptor) (transport.Client, error)

// SubscribeFunc receives every supervisor snapshot change.
type SubscribeFunc func(snap supervisor.Snapshot)

// Coordinator fans fleet operations out across per-device supervisors.
type Coordinator struct {
	registry *device.Registry
	factory  ClientFactory
	cfg      supervisor.Config
	logger   Logger

	mu   sync.Mutex
	sups map[string]*supervisor.Supervisor

	subMu sync.Mutex
	subs  []SubscribeFunc

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a coordinator over the given registry. Supervisors it
// creates inherit cfg. The coordinator installs itself as the
// registry's unregister hook so removing a device also tears its
// connection down.
func New(registry *device.Registry, cfg supervisor.Config) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		registry: registry,
		factory: func(desc *device.Descriptor) (transport.Client, error) {
			return transport.New(desc, transport.Config{RequestTimeout: cfg.RequestTimeout})
		},
		cfg:    cfg,
		logger: noopLogger{},
		sups:   make(map[string]*supervisor.Supervisor),
		ctx:    ctx,
		cancel: cancel,
	}
	registry.SetOnUnregister(c.release)
	return c
}

// SetLogger sets the logger. Must be called before the first dispatch.
func (c *Coordinator) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetClientFactory replaces the transport client factory. Must be
// called before the first dispatch.
func (c *Coordinator) SetClientFactory(f ClientFactory) {
	if f != nil {
		c.factory = f
	}
}

// Subscribe registers an observer for supervisor snapshot changes.
// Callbacks run on supervisor goroutines and must not block.
func (c *Coordinator) Subscribe(fn SubscribeFunc) {
	if fn == nil {
		return
	}
	c.subMu.Lock()
	c.subs = append(c.subs, fn)
	c.subMu.Unlock()
}

func (c *Coordinator) publish(snap supervisor.Snapshot) {
	c.subMu.Lock()
	subs := make([]SubscribeFunc, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// SendPattern delivers a pattern to the targeted devices.
func (c *Coordinator) SendPattern(ctx context.Context, ids []string, p pattern.VibrationPattern) (map[string]Result, error) {
	return c.dispatch(ctx, ids, func(ctx context.Context, sup *supervisor.Supervisor) Result {
		if err := sup.SendPattern(ctx, p); err != nil {
			return Result{Err: err.Error()}
		}
		return Result{OK: true}
	})
}

// SendStop stops playback on the targeted devices.
func (c *Coordinator) SendStop(ctx context.Context, ids []string) (map[string]Result, error) {
	return c.dispatch(ctx, ids, func(ctx context.Context, sup *supervisor.Supervisor) Result {
		if err := sup.SendStop(ctx); err != nil {
			return Result{Err: err.Error()}
		}
		return Result{OK: true}
	})
}

// Status polls the targeted devices. Devices that cannot be polled
// report their last mirrored status with the connection state folded
// in.
func (c *Coordinator) Status(ctx context.Context, ids []string) (map[string]Result, error) {
	return c.dispatch(ctx, ids, func(ctx context.Context, sup *supervisor.Supervisor) Result {
		if st, err := sup.RequestStatus(ctx); err == nil {
			return Result{OK: true, Status: &st}
		}
		st := mirrorStatus(sup.Snapshot())
		return Result{Err: "device not reachable", Status: &st}
	})
}

// Initialize brings the targeted devices to Connected. Idempotent: an
// already-connected device succeeds immediately. A device that cannot
// connect before ctx expires keeps retrying in the background and is
// reported as still connecting.
func (c *Coordinator) Initialize(ctx context.Context, ids []string) (map[string]Result, error) {
	return c.dispatch(ctx, ids, func(ctx context.Context, sup *supervisor.Supervisor) Result {
		return waitConnected(ctx, sup)
	})
}

// Shutdown disconnects the targeted devices and releases their
// supervisors. Idempotent: a device with no live supervisor succeeds
// trivially.
func (c *Coordinator) Shutdown(ctx context.Context, ids []string) (map[string]Result, error) {
	targets, results, err := c.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	var resMu sync.Mutex
	for _, id := range targets {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			c.release(id)
			resMu.Lock()
			results[id] = Result{OK: true}
			resMu.Unlock()
		}(id)
	}
	wg.Wait()
	return results, nil
}

// Close shuts every supervisor down. The coordinator is unusable
// afterwards.
func (c *Coordinator) Close() {
	c.cancel()
	c.mu.Lock()
	sups := make([]*supervisor.Supervisor, 0, len(c.sups))
	for _, sup := range c.sups {
		sups = append(sups, sup)
	}
	c.sups = make(map[string]*supervisor.Supervisor)
	c.mu.Unlock()

	for _, sup := range sups {
		sup.Stop()
	}
}

// Snapshots returns the current view of every supervised device.
func (c *Coordinator) Snapshots() map[string]supervisor.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]supervisor.Snapshot, len(c.sups))
	for id, sup := range c.sups {
		out[id] = sup.Snapshot()
	}
	return out
}

// dispatch resolves targets, runs op per device concurrently and
// aggregates results.
func (c *Coordinator) dispatch(ctx context.Context, ids []string, op func(context.Context, *supervisor.Supervisor) Result) (map[string]Result, error) {
	targets, results, err := c.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	var resMu sync.Mutex
	for _, id := range targets {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res := c.run(ctx, id, op)
			resMu.Lock()
			results[id] = res
			resMu.Unlock()
		}(id)
	}
	wg.Wait()
	return results, nil
}

func (c *Coordinator) run(ctx context.Context, id string, op func(context.Context, *supervisor.Supervisor) Result) Result {
	sup, err := c.ensure(ctx, id)
	if err != nil {
		return Result{Err: err.Error()}
	}
	return op(ctx, sup)
}

// resolve expands the id list against the registry. Unknown ids get an
// error entry; the whole call fails only when nothing is addressable.
func (c *Coordinator) resolve(ctx context.Context, ids []string) (targets []string, results map[string]Result, err error) {
	results = make(map[string]Result)

	if len(ids) == 0 {
		descs, err := c.registry.List(ctx)
		if err != nil {
			return nil, nil, err
		}
		if len(descs) == 0 {
			return nil, nil, ErrNoDevices
		}
		for _, d := range descs {
			targets = append(targets, d.ID)
		}
		return targets, results, nil
	}

	for _, id := range ids {
		if _, err := c.registry.Get(ctx, id); err != nil {
			results[id] = Result{Err: device.ErrDeviceNotFound.Error()}
			continue
		}
		targets = append(targets, id)
	}
	if len(targets) == 0 {
		return nil, nil, ErrNoDevices
	}
	return targets, results, nil
}

// ensure returns the device's supervisor, creating and starting one if
// needed. A supervisor whose loop already exited (device unreachable)
// is replaced so the device gets a fresh reconnection budget.
func (c *Coordinator) ensure(ctx context.Context, id string) (*supervisor.Supervisor, error) {
	c.mu.Lock()
	if sup, ok := c.sups[id]; ok {
		select {
		case <-sup.Done():
			delete(c.sups, id)
		default:
			c.mu.Unlock()
			return sup, nil
		}
	}
	c.mu.Unlock()

	desc, err := c.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	client, err := c.factory(desc)
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(id, client, c.cfg)
	sup.SetLogger(c.logger)
	sup.SetOnStatus(c.publish)

	c.mu.Lock()
	if existing, ok := c.sups[id]; ok {
		// Lost the race; use the supervisor another call created.
		c.mu.Unlock()
		sup.Stop()
		return existing, nil
	}
	c.sups[id] = sup
	c.mu.Unlock()

	sup.Start(c.ctx)
	c.logger.Info("device supervision started", "device_id", id)
	return sup, nil
}

// release stops and removes a device's supervisor. No-op when absent.
func (c *Coordinator) release(id string) {
	c.mu.Lock()
	sup, ok := c.sups[id]
	if ok {
		delete(c.sups, id)
	}
	c.mu.Unlock()

	if ok {
		sup.Stop()
		c.logger.Info("device supervision released", "device_id", id)
	}
}

// waitConnected blocks until the supervisor reaches Connected, goes
// terminal, or ctx expires.
func waitConnected(ctx context.Context, sup *supervisor.Supervisor) Result {
	ticker := time.NewTicker(connectPollInterval)
	defer ticker.Stop()

	for {
		switch sup.State() {
		case supervisor.StateConnected:
			return Result{OK: true}
		case supervisor.StateUnreachable:
			return Result{Err: "device unreachable"}
		}

		select {
		case <-ctx.Done():
			return Result{Err: "connect pending"}
		case <-sup.Done():
			if sup.State() == supervisor.StateUnreachable {
				return Result{Err: "device unreachable"}
			}
			return Result{Err: "supervision stopped"}
		case <-ticker.C:
		}
	}
}

// mirrorStatus folds a supervisor snapshot into a device status for
// reporting when the device cannot be polled live.
func mirrorStatus(snap supervisor.Snapshot) transport.DeviceStatus {
	st := snap.Status
	switch snap.State {
	case supervisor.StateUnreachable:
		st.State = transport.StateUnreachable
		st.IsPlaying = false
	case supervisor.StateConnected:
	default:
		st.State = transport.StateDisconnected
		st.IsPlaying = false
	}
	return st
}
