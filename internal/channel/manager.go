package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"washdeck/internal/device"
	"washdeck/internal/infrastructure/config"
)

// Logger interface for channel logging.
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

// Status describes the lifecycle state of a single channel.
type Status string

const (
	// StatusOpen means the channel is connected and its reader is running.
	StatusOpen Status = "open"

	// StatusClosed means the channel was shut down deliberately, either
	// by CloseAll or by a clean server-side close.
	StatusClosed Status = "closed"

	// StatusErrored means the channel failed to dial or its read loop
	// terminated abnormally. An errored channel stays in the set until
	// the next OpenAll so callers can observe the failure.
	StatusErrored Status = "errored"
)

// DeltaFunc receives decoded usage deltas from channel readers. It is
// called from reader goroutines and must be safe for concurrent use.
type DeltaFunc func(device.Delta)

// Handle is one device's push channel.
type Handle struct {
	deviceID int64

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status
	err    error
}

// DeviceID returns the device this channel belongs to.
func (h *Handle) DeviceID() int64 { return h.deviceID }

// Status returns the channel's current lifecycle state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err returns the failure that moved the channel to StatusErrored, or nil.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// fail records an abnormal termination. A deliberate close wins: once the
// handle is closed, late reader errors are ignored.
func (h *Handle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == StatusClosed {
		return
	}
	h.status = StatusErrored
	h.err = err
}

// shutdown marks the handle closed and closes the underlying connection,
// which unblocks the reader goroutine.
func (h *Handle) shutdown() {
	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.status = StatusClosed
	h.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
}

// Manager owns the set of per-device push channels.
type Manager struct {
	baseURL        string
	dialer         *websocket.Dialer
	maxMessageSize int64
	logger         Logger

	mu      sync.Mutex
	handles map[int64]*Handle
	readers sync.WaitGroup
}

// NewManager creates a channel manager dialing against the given websocket
// base URL (ws:// or wss://, no trailing slash).
func NewManager(wsBaseURL string, cfg config.ChannelsConfig) *Manager {
	return &Manager{
		baseURL: wsBaseURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeout) * time.Second,
		},
		maxMessageSize: int64(cfg.MaxMessageSize),
		logger:         noopLogger{},
		handles:        make(map[int64]*Handle),
	}
}

// SetLogger sets the logger for channel operations.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// OpenAll reconciles the channel set against ids: every existing channel
// is closed first, then one channel per id is dialed. A dial failure
// leaves that device's handle errored and moves on; the siblings open
// normally. Deltas decoded by the readers are delivered to onDelta.
func (m *Manager) OpenAll(ctx context.Context, ids []int64, onDelta DeltaFunc) {
	m.CloseAll()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		// One handle per device. A duplicated id would overwrite its
		// first handle and orphan that connection's reader.
		if _, ok := m.handles[id]; ok {
			continue
		}

		handle := &Handle{deviceID: id}
		m.handles[id] = handle

		url := fmt.Sprintf("%s/device/ws/timeleft/%d", m.baseURL, id)
		conn, _, err := m.dialer.DialContext(ctx, url, nil)
		if err != nil {
			handle.fail(fmt.Errorf("%w: device %d: %v", ErrDial, id, err))
			m.logger.Warn("channel dial failed", "device_id", id, "error", err)
			continue
		}

		conn.SetReadLimit(m.maxMessageSize)
		handle.mu.Lock()
		handle.conn = conn
		handle.status = StatusOpen
		handle.mu.Unlock()

		m.readers.Add(1)
		go m.readLoop(handle, conn, onDelta)

		m.logger.Debug("channel opened", "device_id", id)
	}

	m.logger.Info("channels reconciled", "requested", len(ids))
}

// readLoop decodes deltas until the connection fails or is closed.
func (m *Manager) readLoop(handle *Handle, conn *websocket.Conn, onDelta DeltaFunc) {
	defer m.readers.Done()

	for {
		var delta device.Delta
		if err := conn.ReadJSON(&delta); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				handle.mu.Lock()
				if handle.status == StatusOpen {
					handle.status = StatusClosed
				}
				handle.mu.Unlock()
				m.logger.Debug("channel closed by server", "device_id", handle.deviceID)
			} else {
				handle.fail(fmt.Errorf("%w: device %d: %v", ErrRead, handle.deviceID, err))
				if handle.Status() == StatusErrored {
					m.logger.Warn("channel read failed", "device_id", handle.deviceID, "error", err)
				}
			}
			return
		}

		if delta.DeviceID == 0 {
			delta.DeviceID = handle.deviceID
		}
		if onDelta != nil {
			onDelta(delta)
		}
	}
}

// CloseAll shuts down every channel and waits for all reader goroutines
// to exit. Safe to call repeatedly and on an empty set.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[int64]*Handle)
	m.mu.Unlock()

	for _, handle := range handles {
		handle.shutdown()
	}
	m.readers.Wait()

	if len(handles) > 0 {
		m.logger.Info("channels closed", "count", len(handles))
	}
}

// Handle returns the channel handle for a device, if the device was part
// of the most recent OpenAll.
func (m *Manager) Handle(deviceID int64) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.handles[deviceID]
	return handle, ok
}

// OpenIDs returns the IDs of channels currently in StatusOpen, sorted.
func (m *Manager) OpenIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.handles))
	for id, handle := range m.handles {
		if handle.Status() == StatusOpen {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of handles in the current set, regardless of
// status.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
