package meter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Registry owns the live set of adapters, one per meter name.
//
// Adapters are kept in insertion order so that All() enumerates them
// stably across refreshes. Upsert and Refresh are serialised by updateMu.
// Building or re-addressing an adapter can do I/O (an MQTT meter
// subscribes to its topics), so it runs without mu held; only the final
// swap takes the write lock. All() copies the slice under the read lock,
// so a fetch cycle works on a snapshot that a refresh cannot change
// underneath it and never waits on device I/O.
//
// All public methods are thread-safe.
type Registry struct {
	updateMu sync.Mutex

	mu      sync.RWMutex
	order   []Adapter
	byName  map[string]int // name -> index into order
	factory AdapterFactory
	logger  Logger
}

// NewRegistry creates an empty registry that builds adapters with factory.
func NewRegistry(factory AdapterFactory) *Registry {
	return &Registry{
		byName:  make(map[string]int),
		factory: factory,
		logger:  NoopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Upsert adds or updates the adapter for m.
//
// A meter whose name is already registered only has its address updated,
// and only when the address differs; an unchanged meter is a lookup. A
// changed non-zero ID is passed to the adapter without touching its open
// interval. Whenever an adapter is created or re-addressed, an interval
// start is attempted on it.
//
// Returns the adapter now registered under m.Name.
func (r *Registry) Upsert(ctx context.Context, m Meter) (Adapter, error) {
	r.updateMu.Lock()
	a, changed, err := r.upsert(m)
	r.updateMu.Unlock()

	if err != nil {
		return nil, err
	}
	if changed {
		r.startInterval(ctx, a)
	}
	return a, nil
}

// lookup returns the slot and adapter registered under name.
func (r *Registry) lookup(name string) (int, Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	if !ok {
		return 0, nil, false
	}
	return idx, r.order[idx], true
}

// upsert applies one meter. The caller must hold updateMu, which keeps
// the slot found by lookup valid until the swap.
// changed reports whether the adapter is new or was re-addressed.
func (r *Registry) upsert(m Meter) (a Adapter, changed bool, err error) {
	if err := m.Validate(); err != nil {
		return nil, false, fmt.Errorf("upserting %q: %w", m.Name, err)
	}

	idx, a, ok := r.lookup(m.Name)
	if !ok {
		a, err := r.factory(m)
		if err != nil {
			return nil, false, fmt.Errorf("creating adapter for %q: %w", m.Name, err)
		}
		r.mu.Lock()
		r.byName[m.Name] = len(r.order)
		r.order = append(r.order, a)
		r.mu.Unlock()
		r.logger.Info("meter registered", "meter", m.Name, "address", m.Address)
		return a, true, nil
	}

	current := a.Meter()
	if m.ID != 0 && m.ID != current.ID {
		a.SetMeterID(m.ID)
		r.logger.Info("meter id updated", "meter", m.Name, "old", current.ID, "new", m.ID)
	}
	if current.Address == m.Address {
		return a, false, nil
	}

	err = a.SetAddress(m.Address)
	switch {
	case err == nil:
		r.logger.Info("meter address updated", "meter", m.Name, "old", current.Address, "new", m.Address)
		return a, true, nil
	case errors.Is(err, ErrUnsupportedAddress):
		// Address moved to a different device family; rebuild in place.
		if m.ID == 0 {
			m.ID = current.ID
		}
		replacement, ferr := r.factory(m)
		if ferr != nil {
			return nil, false, fmt.Errorf("creating adapter for %q: %w", m.Name, ferr)
		}
		r.mu.Lock()
		r.order[idx] = replacement
		r.mu.Unlock()
		closeAdapter(a, r.logger)
		r.logger.Info("meter adapter replaced", "meter", m.Name, "old", current.Address, "new", m.Address)
		return replacement, true, nil
	default:
		return nil, false, fmt.Errorf("updating address of %q: %w", m.Name, err)
	}
}

// Refresh polls source and upserts every meter it returns.
//
// Refreshes and upserts do not interleave. If the source fails, the error
// is logged and returned and the registry is left as it was. A meter whose
// adapter cannot be built is logged and skipped.
func (r *Registry) Refresh(ctx context.Context, source Source) error {
	meters, err := source.ListActive(ctx)
	if err != nil {
		r.logger.Error("registry refresh failed", "error", err)
		return fmt.Errorf("listing active meters: %w", err)
	}

	var toStart []Adapter

	r.updateMu.Lock()
	for _, m := range meters {
		a, changed, err := r.upsert(m)
		if err != nil {
			r.logger.Error("skipping meter", "meter", m.Name, "address", m.Address, "error", err)
			continue
		}
		if changed {
			toStart = append(toStart, a)
		}
	}
	r.updateMu.Unlock()

	for _, a := range toStart {
		r.startInterval(ctx, a)
	}

	r.logger.Debug("registry refreshed", "meters", len(meters), "registered", r.Len(), "started", len(toStart))
	return nil
}

// All returns a snapshot of the registered adapters in insertion order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byName[name]
	if !ok {
		return nil, ErrMeterNotFound
	}
	return r.order[idx], nil
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Close releases adapters that hold resources (subscriptions, connections).
func (r *Registry) Close() {
	r.updateMu.Lock()
	defer r.updateMu.Unlock()

	for _, a := range r.All() {
		closeAdapter(a, r.logger)
	}
}

func (r *Registry) startInterval(ctx context.Context, a Adapter) {
	if err := a.AttemptStartInterval(ctx); err != nil {
		r.logger.Warn("could not start interval", "meter", a.Meter().Name, "error", err)
	}
}

func closeAdapter(a Adapter, logger Logger) {
	c, ok := a.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("closing adapter", "meter", a.Meter().Name, "error", err)
	}
}
