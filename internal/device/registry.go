package device

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// UnregisterFunc is notified after a device has been removed so the
// owner of its connection (the fleet coordinator) can disconnect the
// supervisor and release resources.
type UnregisterFunc func(id string)

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// Registration order is preserved: List returns descriptors in the
// order devices were registered, matching the repository's rowid order.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations. All public methods are
// thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Descriptor // Cached descriptors by ID
	order   []string               // IDs in registration order
	cacheMu sync.RWMutex           // Protects cache and order

	onUnregister UnregisterFunc
	logger       Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Descriptor),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetOnUnregister installs the unregister notification hook.
// Must be called before the registry is shared across goroutines.
func (r *Registry) SetOnUnregister(fn UnregisterFunc) {
	r.onUnregister = fn
}

// RefreshCache reloads all descriptors from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	descriptors, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies, preserving repository order
	r.cache = make(map[string]*Descriptor, len(descriptors))
	r.order = make([]string, 0, len(descriptors))
	for i := range descriptors {
		d := descriptors[i]
		r.cache[d.ID] = d.DeepCopy()
		r.order = append(r.order, d.ID)
	}

	r.logger.Info("device cache refreshed", "count", len(descriptors))
	return nil
}

// Register validates and persists a new device.
// A missing ID is generated. Returns ErrDeviceExists if the ID is
// already registered.
func (r *Registry) Register(ctx context.Context, d *Descriptor) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.WSPath == "" && d.Transport == TransportWebSocket {
		d.WSPath = "/ws"
	}
	if d.Transport == "" {
		d.Transport = TransportWebSocket
		if d.WSPath == "" {
			d.WSPath = "/ws"
		}
	}

	if err := ValidateDescriptor(d); err != nil {
		return err
	}

	// Reject duplicates from the cache before touching the repository
	// so a re-register of a known ID never reaches the database.
	r.cacheMu.RLock()
	_, exists := r.cache[d.ID]
	r.cacheMu.RUnlock()
	if exists {
		return ErrDeviceExists
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.order = append(r.order, d.ID)
	r.cacheMu.Unlock()

	r.logger.Info("device registered", "id", d.ID, "name", d.Name, "addr", d.Addr())
	return nil
}

// Unregister removes a device and notifies the unregister hook so the
// associated connection supervisor is shut down.
// Returns ErrDeviceNotFound if the ID is unknown.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.cacheMu.Unlock()

	if r.onUnregister != nil {
		r.onUnregister(id)
	}

	r.logger.Info("device unregistered", "id", id)
	return nil
}

// Get retrieves a descriptor by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned descriptor is a deep copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Descriptor, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	if _, ok := r.cache[d.ID]; !ok {
		r.cache[d.ID] = d.DeepCopy()
		r.order = append(r.order, d.ID)
	}
	r.cacheMu.Unlock()

	return d, nil
}

// List retrieves all descriptors in registration order.
// The returned descriptors are deep copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]Descriptor, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		descriptors := make([]Descriptor, 0, len(r.order))
		for _, id := range r.order {
			if d, ok := r.cache[id]; ok {
				descriptors = append(descriptors, *d.DeepCopy())
			}
		}
		return descriptors, nil
	}

	return r.repo.List(ctx)
}

// Update replaces an existing descriptor (update-or-replace semantics).
// The device keeps its position in registration order.
func (r *Registry) Update(ctx context.Context, d *Descriptor) error {
	if err := ValidateDescriptor(d); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", d.ID, "name", d.Name)
	return nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
