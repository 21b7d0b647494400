package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"washdeck/internal/device"
	"washdeck/internal/fleet"
)

// Logger interface for command logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// API is the slice of the fleet client the dispatcher sends commands with.
type API interface {
	StartDevice(ctx context.Context, deviceID, userID int64, durationMinutes int) error
	StopDevice(ctx context.Context, deviceID int64) error
}

// Sessions supplies the operator identity for the admin gate.
type Sessions interface {
	Identity(ctx context.Context, forceRefresh bool) (*fleet.Identity, error)
}

// Recorder receives accepted commands for usage telemetry. Only commands
// the backend accepted are recorded; local and backend rejections are not.
type Recorder interface {
	RecordCommand(deviceID int64, verb string)
}

// Cause distinguishes what a pending mark is waiting for.
type Cause string

const (
	CauseStart Cause = "start"
	CauseStop  Cause = "stop"
)

// Pending records an accepted command whose state change has not yet
// arrived as a push delta.
type Pending struct {
	Cause Cause
	At    time.Time
}

// Dispatcher validates and sends device commands.
type Dispatcher struct {
	api      API
	sessions Sessions
	logger   Logger
	recorder Recorder

	mu      sync.Mutex
	pending map[int64]Pending
}

// NewDispatcher creates a dispatcher sending commands through api, with
// the admin gate checked against sessions.
func NewDispatcher(api API, sessions Sessions) *Dispatcher {
	return &Dispatcher{
		api:      api,
		sessions: sessions,
		logger:   noopLogger{},
		pending:  make(map[int64]Pending),
	}
}

// SetLogger sets the logger for command operations.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetRecorder sets the telemetry recorder for accepted commands.
func (d *Dispatcher) SetRecorder(recorder Recorder) {
	d.recorder = recorder
}

// Start requests that a device begin a run for userID lasting
// durationMinutes. The duration and the operator's administrator role are
// checked before any network traffic; either failure rejects the command
// locally. On acceptance the device is marked pending until its delta
// arrives.
func (d *Dispatcher) Start(ctx context.Context, deviceID, userID int64, durationMinutes int) error {
	if durationMinutes <= 0 {
		return ErrInvalidDuration
	}

	identity, err := d.sessions.Identity(ctx, false)
	if err != nil {
		return fmt.Errorf("resolving operator for start: %w", err)
	}
	if !identity.IsAdmin {
		d.logger.Warn("start refused for non-admin operator", "device_id", deviceID, "uid", identity.UID)
		return &RejectedError{Reason: "operator is not an administrator"}
	}

	d.markPending(deviceID, CauseStart)
	if err := d.api.StartDevice(ctx, deviceID, userID, durationMinutes); err != nil {
		d.clearPending(deviceID)
		return rejectionFrom("start", deviceID, err)
	}

	d.logger.Info("start accepted", "device_id", deviceID, "user_id", userID, "duration_minutes", durationMinutes)
	d.recordCommand(deviceID, CauseStart)
	return nil
}

// Stop requests that a device end its current run. On acceptance the
// device is marked pending until its delta arrives.
func (d *Dispatcher) Stop(ctx context.Context, deviceID int64) error {
	d.markPending(deviceID, CauseStop)
	if err := d.api.StopDevice(ctx, deviceID); err != nil {
		d.clearPending(deviceID)
		return rejectionFrom("stop", deviceID, err)
	}

	d.logger.Info("stop accepted", "device_id", deviceID)
	d.recordCommand(deviceID, CauseStop)
	return nil
}

// recordCommand forwards an accepted command to telemetry, when wired.
func (d *Dispatcher) recordCommand(deviceID int64, cause Cause) {
	if d.recorder != nil {
		d.recorder.RecordCommand(deviceID, string(cause))
	}
}

// rejectionFrom converts a transport error into the caller-facing error.
// A backend rejection carries the backend's own detail; anything else is
// passed through as a plain transport failure.
func rejectionFrom(verb string, deviceID int64, err error) error {
	var apiErr *fleet.APIError
	if errors.As(err, &apiErr) {
		return &RejectedError{Reason: apiErr.Detail}
	}
	return fmt.Errorf("sending %s for device %d: %w", verb, deviceID, err)
}

// Pending reports whether a command for the device is awaiting its delta.
func (d *Dispatcher) Pending(deviceID int64) (Pending, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[deviceID]
	return p, ok
}

// ObserveDelta clears the pending mark for the delta's device. The delta
// itself is the authoritative state change; the dispatcher only stops
// waiting for it.
func (d *Dispatcher) ObserveDelta(delta device.Delta) {
	d.mu.Lock()
	_, ok := d.pending[delta.DeviceID]
	delete(d.pending, delta.DeviceID)
	d.mu.Unlock()

	if ok {
		d.logger.Debug("pending command settled", "device_id", delta.DeviceID)
	}
}

func (d *Dispatcher) markPending(deviceID int64, cause Cause) {
	d.mu.Lock()
	d.pending[deviceID] = Pending{Cause: cause, At: time.Now()}
	d.mu.Unlock()
}

func (d *Dispatcher) clearPending(deviceID int64) {
	d.mu.Lock()
	delete(d.pending, deviceID)
	d.mu.Unlock()
}
