package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"washdeck/internal/device"
)

// defaultTimeout is used when no per-request timeout is configured.
const defaultTimeout = 10 * time.Second

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// Client is the authenticated REST client for the fleet server.
//
// It holds the current bearer token; the session cache injects the token
// via SetToken/ClearToken and every other component issues its calls
// through the same client instance.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a fleet client for the given base URL
// (e.g. "http://localhost:8000").
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetToken stores the bearer token used on subsequent authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearToken drops the bearer token.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// currentToken returns the bearer token, if set.
func (c *Client) currentToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// Login exchanges operator credentials for a bearer token via the
// form-encoded POST /auth/token endpoint. It does not store the token;
// the session cache owns that decision.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var grant TokenGrant
	if err := c.do(req, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// LoginWithKeycard exchanges a keycard id and PIN for a bearer token.
func (c *Client) LoginWithKeycard(ctx context.Context, keyCardID, pin string) (*TokenGrant, error) {
	var grant TokenGrant
	err := c.doJSON(ctx, http.MethodPost, "/auth/token/keycard",
		keycardRequest{KeyCardID: keyCardID, PIN: pin}, &grant, false)
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// Me fetches the identity of the authenticated operator.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var identity Identity
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &identity, true); err != nil {
		return nil, err
	}
	return &identity, nil
}

// FetchDevices performs the authenticated bulk device fetch.
// It implements device.SnapshotSource.
func (c *Client) FetchDevices(ctx context.Context) ([]device.Device, error) {
	var devices []device.Device
	if err := c.doJSON(ctx, http.MethodGet, "/device/all", nil, &devices, true); err != nil {
		return nil, err
	}
	return devices, nil
}

// StartDevice issues a start command for a device on behalf of a user.
// The server reflects a successful start through the device's push
// channel; the success response carries no device state worth keeping.
func (c *Client) StartDevice(ctx context.Context, deviceID, userID int64, durationMinutes int) error {
	path := fmt.Sprintf("/device/start/%d", deviceID)
	return c.doJSON(ctx, http.MethodPost, path,
		startRequest{UserID: userID, DurationMinutes: durationMinutes}, nil, true)
}

// StopDevice issues a stop command for a device.
func (c *Client) StopDevice(ctx context.Context, deviceID int64) error {
	path := fmt.Sprintf("/device/stop/%d", deviceID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil, true)
}

// UpdateUser applies a partial update to a user record and returns the
// updated identity.
func (c *Client) UpdateUser(ctx context.Context, userID int64, patch UserPatch) (*Identity, error) {
	var identity Identity
	path := fmt.Sprintf("/user/%d", userID)
	if err := c.doJSON(ctx, http.MethodPatch, path, patch, &identity, true); err != nil {
		return nil, err
	}
	return &identity, nil
}

// LinkKeycard attaches a keycard to a user account.
func (c *Client) LinkKeycard(ctx context.Context, userID int64, keyCardID, pin string) error {
	path := fmt.Sprintf("/user/%d/keycard", userID)
	return c.doJSON(ctx, http.MethodPost, path,
		keycardRequest{KeyCardID: keyCardID, PIN: pin}, nil, true)
}

// UnlinkKeycard detaches the keycard from a user account.
func (c *Client) UnlinkKeycard(ctx context.Context, userID int64) error {
	path := fmt.Sprintf("/user/%d/keycard", userID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, true)
}

// doJSON builds and executes a JSON request against the fleet API.
// When authenticated is set, the bearer token is attached (ErrNoToken if
// absent). Mutating device commands carry an Idempotency-Key header so a
// retried request cannot double-charge a user.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, authenticated bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authenticated {
		token, ok := c.currentToken()
		if !ok {
			return ErrNoToken
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if method == http.MethodPost && strings.HasPrefix(path, "/device/") {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	return c.do(req, out)
}

// do executes a request, decoding the JSON response into out on success
// and the server's {detail} error envelope into an *APIError otherwise.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fleet request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body close on read path

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		if readErr == nil {
			var body errorBody
			if json.Unmarshal(data, &body) == nil {
				apiErr.Detail = body.Detail
			}
		}
		return apiErr
	}

	if out == nil {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best effort drain
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
