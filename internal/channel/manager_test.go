package channel

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"washdeck/internal/device"
	"washdeck/internal/fleettest"
	"washdeck/internal/infrastructure/config"
)

func testChannelsConfig() config.ChannelsConfig {
	return config.ChannelsConfig{
		HandshakeTimeout: 5,
		MaxMessageSize:   4096,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func int64Ptr(v int64) *int64 { return &v }

func TestManager_OpenAll(t *testing.T) {
	server := fleettest.NewServer()
	defer server.Close()

	manager := NewManager(server.WSURL(), testChannelsConfig())
	defer manager.CloseAll()

	manager.OpenAll(context.Background(), []int64{1, 2, 3}, nil)

	want := []int64{1, 2, 3}
	if got := manager.OpenIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("OpenIDs() = %v, want %v", got, want)
	}
	for _, id := range want {
		if server.ChannelCount(id) != 1 {
			t.Errorf("server ChannelCount(%d) = %d, want 1", id, server.ChannelCount(id))
		}
	}
}

func TestManager_OpenAllReconciles(t *testing.T) {
	server := fleettest.NewServer()
	defer server.Close()

	manager := NewManager(server.WSURL(), testChannelsConfig())
	defer manager.CloseAll()
	ctx := context.Background()

	manager.OpenAll(ctx, []int64{1, 2, 3}, nil)

	first2, ok := manager.Handle(2)
	if !ok {
		t.Fatal("Handle(2) missing after first OpenAll")
	}

	manager.OpenAll(ctx, []int64{2, 3, 4}, nil)

	want := []int64{2, 3, 4}
	if got := manager.OpenIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("OpenIDs() = %v, want %v", got, want)
	}

	// Device 1 left the set entirely.
	if _, ok := manager.Handle(1); ok {
		t.Error("Handle(1) still present after reconcile")
	}
	waitFor(t, func() bool { return server.ChannelCount(1) == 0 },
		"server still holds a connection for device 1")

	// Device 2 got a fresh channel, not the old one reused.
	second2, ok := manager.Handle(2)
	if !ok {
		t.Fatal("Handle(2) missing after second OpenAll")
	}
	if first2 == second2 {
		t.Error("reconcile reused the previous handle for device 2")
	}
	if first2.Status() != StatusClosed {
		t.Errorf("old handle status = %v, want %v", first2.Status(), StatusClosed)
	}
}

func TestManager_OpenAllDuplicateIDs(t *testing.T) {
	server := fleettest.NewServer()
	defer server.Close()

	manager := NewManager(server.WSURL(), testChannelsConfig())

	manager.OpenAll(context.Background(), []int64{1, 1, 2}, nil)

	if got := manager.OpenIDs(); !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Errorf("OpenIDs() = %v, want [1 2]", got)
	}
	if manager.Count() != 2 {
		t.Errorf("Count() = %d, want 2", manager.Count())
	}
	if server.ChannelCount(1) != 1 {
		t.Errorf("server ChannelCount(1) = %d, want a single connection", server.ChannelCount(1))
	}

	// Teardown must not wait on a reader whose handle was lost.
	done := make(chan struct{})
	go func() {
		manager.CloseAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("CloseAll did not return")
	}
}

func TestManager_DeliversDeltas(t *testing.T) {
	server := fleettest.NewServer()
	defer server.Close()

	manager := NewManager(server.WSURL(), testChannelsConfig())
	defer manager.CloseAll()

	var mu sync.Mutex
	var received []device.Delta
	onDelta := func(d device.Delta) {
		mu.Lock()
		received = append(received, d)
		mu.Unlock()
	}

	manager.OpenAll(context.Background(), []int64{2}, onDelta)

	server.Push(device.Delta{DeviceID: 2, UserID: int64Ptr(7), TimeLeft: int64Ptr(540)})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, "delta not delivered")

	mu.Lock()
	defer mu.Unlock()
	got := received[0]
	if got.DeviceID != 2 || got.UserID == nil || *got.UserID != 7 || got.TimeLeft == nil || *got.TimeLeft != 540 {
		t.Errorf("delta = %+v", got)
	}
}

func TestManager_ServerCloseLeavesSiblingsOpen(t *testing.T) {
	server := fleettest.NewServer()
	defer server.Close()

	manager := NewManager(server.WSURL(), testChannelsConfig())
	defer manager.CloseAll()

	var mu sync.Mutex
	var received []device.Delta
	onDelta := func(d device.Delta) {
		mu.Lock()
		received = append(received, d)
		mu.Unlock()
	}

	manager.OpenAll(context.Background(), []int64{1, 2, 3}, onDelta)

	server.CloseChannel(2)

	handle2, _ := manager.Handle(2)
	waitFor(t, func() bool { return handle2.Status() != StatusOpen },
		"channel 2 still open after server close")

	for _, id := range []int64{1, 3} {
		handle, ok := manager.Handle(id)
		if !ok || handle.Status() != StatusOpen {
			t.Errorf("sibling channel %d not open", id)
		}
	}

	// Sibling still delivers after channel 2 died.
	server.Push(device.Delta{DeviceID: 1, UserID: int64Ptr(9), TimeLeft: int64Ptr(60)})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, "sibling delta not delivered")
}

func TestManager_DialFailureMarksErrored(t *testing.T) {
	// Nothing listens here; every dial fails.
	manager := NewManager("ws://127.0.0.1:1", testChannelsConfig())
	defer manager.CloseAll()

	manager.OpenAll(context.Background(), []int64{1, 2}, nil)

	if got := manager.OpenIDs(); len(got) != 0 {
		t.Errorf("OpenIDs() = %v, want none", got)
	}
	if manager.Count() != 2 {
		t.Errorf("Count() = %d, want 2 errored handles", manager.Count())
	}
	for _, id := range []int64{1, 2} {
		handle, ok := manager.Handle(id)
		if !ok {
			t.Fatalf("Handle(%d) missing", id)
		}
		if handle.Status() != StatusErrored {
			t.Errorf("handle %d status = %v, want %v", id, handle.Status(), StatusErrored)
		}
		if !errors.Is(handle.Err(), ErrDial) {
			t.Errorf("handle %d err = %v, want ErrDial", id, handle.Err())
		}
	}
}

func TestManager_CloseAll(t *testing.T) {
	server := fleettest.NewServer()
	defer server.Close()

	manager := NewManager(server.WSURL(), testChannelsConfig())
	manager.OpenAll(context.Background(), []int64{1, 2, 3}, nil)

	manager.CloseAll()

	if manager.Count() != 0 {
		t.Errorf("Count() = %d after CloseAll, want 0", manager.Count())
	}
	for _, id := range []int64{1, 2, 3} {
		waitFor(t, func() bool { return server.ChannelCount(id) == 0 },
			"server still holds a connection after CloseAll")
	}

	// Idempotent.
	manager.CloseAll()
	manager.CloseAll()
}

func TestManager_CloseAllOnEmptySet(t *testing.T) {
	manager := NewManager("ws://127.0.0.1:1", testChannelsConfig())
	manager.CloseAll()
}
