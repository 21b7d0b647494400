package device

import (
	"context"
	"fmt"
	"sort"
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

// SnapshotSource performs the authenticated bulk device fetch.
// The fleet REST client implements this interface.
type SnapshotSource interface {
	FetchDevices(ctx context.Context) ([]Device, error)
}

// Registry holds the in-memory device collection and keeps it consistent
// with the fleet server: snapshots replace the collection wholesale, push
// deltas merge into existing records.
//
// The registry never creates or deletes devices on its own; a delta for a
// device outside the current snapshot is dropped, since snapshot and
// channel set are refreshed together.
//
// All public methods are thread-safe.
type Registry struct {
	source  SnapshotSource
	devices map[int64]*Device
	mu      sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry backed by the given snapshot source.
func NewRegistry(source SnapshotSource) *Registry {
	return &Registry{
		source:  source,
		devices: make(map[int64]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// LoadSnapshot fetches the full device list and replaces the local
// collection. On failure the previous collection is left untouched and
// ErrSnapshotLoad is returned; there is no partial replace.
//
// The returned slice contains independent copies sorted by device ID.
func (r *Registry) LoadSnapshot(ctx context.Context) ([]Device, error) {
	devices, err := r.source.FetchDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotLoad, err)
	}

	r.mu.Lock()
	// Clear and rebuild with normalised copies
	r.devices = make(map[int64]*Device, len(devices))
	for i := range devices {
		d := devices[i].Clone()
		d.Normalize()
		r.devices[d.ID] = d
	}
	r.mu.Unlock()

	r.logger.Info("device snapshot loaded", "count", len(devices))
	return r.All(), nil
}

// ApplyDelta merges a push update into the matching device record.
// Exactly the two mutable usage fields (assigned user, time left) are
// replaced; every other field is preserved. A delta for an unknown device
// id is dropped without error.
//
// Deltas are applied in arrival order per device; the last delta applied
// for a given device wins.
func (r *Registry) ApplyDelta(delta Delta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.devices[delta.DeviceID]
	if !ok {
		r.logger.Debug("delta for unknown device dropped", "device_id", delta.DeviceID)
		return
	}

	// Atomic replacement: build the merged copy, then swap it in
	updated := current.Clone()
	updated.UserID = delta.UserID
	updated.TimeLeft = delta.TimeLeft
	updated.Normalize()
	r.devices[delta.DeviceID] = updated

	r.logger.Debug("delta applied",
		"device_id", delta.DeviceID,
		"running", updated.Running(),
	)
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) Get(id int64) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.Clone(), nil
}

// All retrieves all devices sorted by ID.
// The returned devices are copies; callers can safely modify them.
func (r *Registry) All() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.Clone())
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// IDs returns the IDs of all devices in the current collection, sorted.
// This is the target set the channel manager reconciles against.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of devices in the current collection.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
