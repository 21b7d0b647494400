// Package fleettest provides a fake fleet server for package tests.
//
// The server speaks the same REST and websocket surface as the real fleet
// backend: token login, identity, device snapshots, start/stop commands,
// user updates, and one push channel per device at /device/ws/timeleft/{id}.
// Tests drive the push side through Push and CloseChannel.
package fleettest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"washdeck/internal/device"
	"washdeck/internal/fleet"
)

// Credentials accepted by the fake login endpoints.
const (
	Username  = "operator"
	Password  = "hunter2"
	KeyCardID = "card-123"
	PIN       = "0000"

	// Token is the bearer token issued by the fake login endpoints and
	// required on every authenticated route.
	Token = "test-token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Server is an in-process fleet server backed by httptest.
type Server struct {
	http *httptest.Server

	mu        sync.Mutex
	devices   []device.Device
	identity  fleet.Identity
	rejectCmd string // when set, start/stop respond 400 with this detail
	conns     map[int64][]*websocket.Conn

	meCalls    int
	startCalls int
	stopCalls  int
	lastStart  struct {
		DeviceID        int64
		UserID          int64 `json:"user_id"`
		DurationMinutes int   `json:"duration_minutes"`
	}
}

// NewServer starts a fake fleet server. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		identity: fleet.Identity{
			UID:          1,
			Name:         Username,
			Cash:         25.0,
			IsAdmin:      true,
			HasKeycard:   false,
			CreationTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		conns: make(map[int64][]*websocket.Conn),
	}

	r := chi.NewRouter()
	r.Post("/auth/token", s.handleLogin)
	r.Post("/auth/token/keycard", s.handleKeycardLogin)
	r.Get("/auth/me", s.authed(s.handleMe))
	r.Get("/device/all", s.authed(s.handleDevices))
	r.Post("/device/start/{deviceID}", s.authed(s.handleStart))
	r.Post("/device/stop/{deviceID}", s.authed(s.handleStop))
	r.Patch("/user/{userID}", s.authed(s.handleUserPatch))
	r.Post("/user/{userID}/keycard", s.authed(s.handleKeycardLink))
	r.Delete("/user/{userID}/keycard", s.authed(s.handleKeycardUnlink))
	r.Get("/device/ws/timeleft/{deviceID}", s.handleTimeLeftWS)

	s.http = httptest.NewServer(r)
	return s
}

// Close shuts the server down and drops all push connections.
func (s *Server) Close() {
	s.mu.Lock()
	for _, conns := range s.conns {
		for _, c := range conns {
			c.Close() //nolint:errcheck // test teardown
		}
	}
	s.conns = make(map[int64][]*websocket.Conn)
	s.mu.Unlock()
	s.http.Close()
}

// URL returns the HTTP base URL of the fake server.
func (s *Server) URL() string { return s.http.URL }

// WSURL returns the websocket base URL of the fake server.
func (s *Server) WSURL() string { return "ws" + strings.TrimPrefix(s.http.URL, "http") }

// SetDevices replaces the device collection served by /device/all.
func (s *Server) SetDevices(devices []device.Device) {
	s.mu.Lock()
	s.devices = append([]device.Device(nil), devices...)
	s.mu.Unlock()
}

// SetIdentity replaces the identity served by /auth/me.
func (s *Server) SetIdentity(identity fleet.Identity) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
}

// RejectCommands makes start/stop respond 400 with the given detail.
// An empty detail restores normal behaviour.
func (s *Server) RejectCommands(detail string) {
	s.mu.Lock()
	s.rejectCmd = detail
	s.mu.Unlock()
}

// MeCalls returns how many times /auth/me has been served.
func (s *Server) MeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meCalls
}

// StartCalls returns how many start commands reached the server.
func (s *Server) StartCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls
}

// StopCalls returns how many stop commands reached the server.
func (s *Server) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// LastStart returns the device id, user id and duration of the most
// recent start command.
func (s *Server) LastStart() (deviceID, userID int64, durationMinutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStart.DeviceID, s.lastStart.UserID, s.lastStart.DurationMinutes
}

// ChannelCount returns the number of open push connections for a device.
func (s *Server) ChannelCount(deviceID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[deviceID])
}

// Push delivers a delta to every push connection for the delta's device.
func (s *Server) Push(delta device.Delta) {
	data, err := json.Marshal(delta)
	if err != nil {
		return
	}

	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns[delta.DeviceID]...)
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteMessage(websocket.TextMessage, data) //nolint:errcheck // dead conns caught by reader
	}
}

// CloseChannel performs a server-initiated close of every push connection
// for the given device.
func (s *Server) CloseChannel(deviceID int64) {
	s.mu.Lock()
	conns := s.conns[deviceID]
	delete(s.conns, deviceID)
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, //nolint:errcheck // best effort close frame
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		c.Close() //nolint:errcheck // test teardown
	}
}

// authed wraps a handler with bearer token enforcement.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+Token {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	if r.PostFormValue("username") != Username || r.PostFormValue("password") != Password {
		writeError(w, http.StatusUnauthorized, "incorrect username or password")
		return
	}
	s.writeGrant(w)
}

func (s *Server) handleKeycardLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeyCardID string `json:"key_card_id"`
		PIN       string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.KeyCardID != KeyCardID || req.PIN != PIN {
		writeError(w, http.StatusUnauthorized, "incorrect keycard or pin")
		return
	}
	s.writeGrant(w)
}

func (s *Server) writeGrant(w http.ResponseWriter) {
	s.mu.Lock()
	uid := s.identity.UID
	s.mu.Unlock()
	writeJSON(w, fleet.TokenGrant{AccessToken: Token, TokenType: "bearer", UserID: uid})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.meCalls++
	identity := s.identity
	s.mu.Unlock()
	writeJSON(w, identity)
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	devices := append([]device.Device(nil), s.devices...)
	s.mu.Unlock()
	writeJSON(w, devices)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	deviceID, err := strconv.ParseInt(chi.URLParam(r, "deviceID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req struct {
		UserID          int64 `json:"user_id"`
		DurationMinutes int   `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	reject := s.rejectCmd
	if reject == "" {
		s.startCalls++
		s.lastStart.DeviceID = deviceID
		s.lastStart.UserID = req.UserID
		s.lastStart.DurationMinutes = req.DurationMinutes
	}
	s.mu.Unlock()

	if reject != "" {
		writeError(w, http.StatusBadRequest, reject)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	reject := s.rejectCmd
	if reject == "" {
		s.stopCalls++
	}
	s.mu.Unlock()

	if reject != "" {
		writeError(w, http.StatusBadRequest, reject)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUserPatch(w http.ResponseWriter, r *http.Request) {
	var patch fleet.UserPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	if patch.Name != nil {
		s.identity.Name = *patch.Name
	}
	if patch.Cash != nil {
		s.identity.Cash = *patch.Cash
	}
	identity := s.identity
	s.mu.Unlock()

	writeJSON(w, identity)
}

func (s *Server) handleKeycardLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeyCardID string `json:"key_card_id"`
		PIN       string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	s.identity.HasKeycard = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleKeycardUnlink(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.identity.HasKeycard = false
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTimeLeftWS(w http.ResponseWriter, r *http.Request) {
	deviceID, err := strconv.ParseInt(chi.URLParam(r, "deviceID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid device id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[deviceID] = append(s.conns[deviceID], conn)
	s.mu.Unlock()

	// Reader drains the connection until the client closes it, then
	// deregisters. The channel is server-to-client only.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.mu.Lock()
		conns := s.conns[deviceID]
		for i, c := range conns {
			if c == conn {
				s.conns[deviceID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		conn.Close() //nolint:errcheck // already closing
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test server write
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail}) //nolint:errcheck // test server write
}
