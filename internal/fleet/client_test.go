package fleet_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"washdeck/internal/fleet"
	"washdeck/internal/fleettest"
)

func newClient(t *testing.T) (*fleet.Client, *fleettest.Server) {
	t.Helper()
	server := fleettest.NewServer()
	t.Cleanup(server.Close)
	return fleet.NewClient(server.URL(), 5*time.Second), server
}

func TestClient_Login(t *testing.T) {
	client, _ := newClient(t)

	grant, err := client.Login(context.Background(), fleettest.Username, fleettest.Password)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if grant.AccessToken != fleettest.Token {
		t.Errorf("AccessToken = %q, want %q", grant.AccessToken, fleettest.Token)
	}
	if grant.UserID != 1 {
		t.Errorf("UserID = %d, want 1", grant.UserID)
	}
}

func TestClient_Login_BadCredentials(t *testing.T) {
	client, _ := newClient(t)

	_, err := client.Login(context.Background(), fleettest.Username, "wrong")
	if !errors.Is(err, fleet.ErrUnauthorized) {
		t.Fatalf("Login() error = %v, want ErrUnauthorized", err)
	}

	var apiErr *fleet.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Login() error is not *APIError: %v", err)
	}
	if apiErr.Detail == "" {
		t.Error("expected server detail message")
	}
}

func TestClient_LoginWithKeycard(t *testing.T) {
	client, _ := newClient(t)

	grant, err := client.LoginWithKeycard(context.Background(), fleettest.KeyCardID, fleettest.PIN)
	if err != nil {
		t.Fatalf("LoginWithKeycard() error = %v", err)
	}
	if grant.AccessToken != fleettest.Token {
		t.Errorf("AccessToken = %q, want %q", grant.AccessToken, fleettest.Token)
	}
}

func TestClient_Me_RequiresToken(t *testing.T) {
	client, _ := newClient(t)

	if _, err := client.Me(context.Background()); !errors.Is(err, fleet.ErrNoToken) {
		t.Fatalf("Me() without token error = %v, want ErrNoToken", err)
	}

	client.SetToken(fleettest.Token)
	identity, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if identity.UID != 1 || !identity.IsAdmin {
		t.Errorf("unexpected identity: %+v", identity)
	}
}

func TestClient_Me_InvalidToken(t *testing.T) {
	client, _ := newClient(t)
	client.SetToken("expired")

	_, err := client.Me(context.Background())
	if !errors.Is(err, fleet.ErrUnauthorized) {
		t.Fatalf("Me() error = %v, want ErrUnauthorized", err)
	}
}

func TestClient_FetchDevices(t *testing.T) {
	client, server := newClient(t)
	client.SetToken(fleettest.Token)

	server.SetDevices(fleettest.Fleet())

	devices, err := client.FetchDevices(context.Background())
	if err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("FetchDevices() returned %d devices, want 3", len(devices))
	}
	if devices[1].UserID == nil || *devices[1].UserID != 7 {
		t.Errorf("device 2 UserID = %v, want 7", devices[1].UserID)
	}
}

func TestClient_StartDevice(t *testing.T) {
	client, server := newClient(t)
	client.SetToken(fleettest.Token)

	if err := client.StartDevice(context.Background(), 3, 7, 90); err != nil {
		t.Fatalf("StartDevice() error = %v", err)
	}

	deviceID, userID, duration := server.LastStart()
	if deviceID != 3 || userID != 7 || duration != 90 {
		t.Errorf("server saw start (%d, %d, %d), want (3, 7, 90)", deviceID, userID, duration)
	}
}

func TestClient_StartDevice_ServerDetailSurfaced(t *testing.T) {
	client, server := newClient(t)
	client.SetToken(fleettest.Token)
	server.RejectCommands("device already running")

	err := client.StartDevice(context.Background(), 3, 7, 90)

	var apiErr *fleet.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("StartDevice() error = %v, want *APIError", err)
	}
	if apiErr.Detail != "device already running" {
		t.Errorf("Detail = %q, want server message", apiErr.Detail)
	}
}

func TestClient_StopDevice(t *testing.T) {
	client, server := newClient(t)
	client.SetToken(fleettest.Token)

	if err := client.StopDevice(context.Background(), 2); err != nil {
		t.Fatalf("StopDevice() error = %v", err)
	}
	if server.StopCalls() != 1 {
		t.Errorf("StopCalls() = %d, want 1", server.StopCalls())
	}
}

func TestClient_UpdateUser(t *testing.T) {
	client, _ := newClient(t)
	client.SetToken(fleettest.Token)

	name := "renamed"
	identity, err := client.UpdateUser(context.Background(), 1, fleet.UserPatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if identity.Name != "renamed" {
		t.Errorf("Name = %q, want %q", identity.Name, "renamed")
	}
}

func TestClient_KeycardLifecycle(t *testing.T) {
	client, _ := newClient(t)
	client.SetToken(fleettest.Token)
	ctx := context.Background()

	if err := client.LinkKeycard(ctx, 1, fleettest.KeyCardID, fleettest.PIN); err != nil {
		t.Fatalf("LinkKeycard() error = %v", err)
	}

	identity, err := client.Me(ctx)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if !identity.HasKeycard {
		t.Error("HasKeycard = false after link")
	}

	if err := client.UnlinkKeycard(ctx, 1); err != nil {
		t.Fatalf("UnlinkKeycard() error = %v", err)
	}

	identity, err = client.Me(ctx)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if identity.HasKeycard {
		t.Error("HasKeycard = true after unlink")
	}
}

func TestClient_ClearToken(t *testing.T) {
	client, _ := newClient(t)
	client.SetToken(fleettest.Token)
	client.ClearToken()

	if _, err := client.Me(context.Background()); !errors.Is(err, fleet.ErrNoToken) {
		t.Errorf("Me() after ClearToken error = %v, want ErrNoToken", err)
	}
}
