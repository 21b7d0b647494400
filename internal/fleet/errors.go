package fleet

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the fleet client.
var (
	// ErrUnauthorized indicates the server rejected the bearer token.
	ErrUnauthorized = errors.New("fleet: unauthorized")

	// ErrNoToken indicates an authenticated call was attempted with no token set.
	ErrNoToken = errors.New("fleet: no bearer token")
)

// APIError is a non-success response from the fleet server, carrying the
// server's detail message when one was provided.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("fleet: server returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("fleet: server returned %d", e.Status)
}

// Unwrap maps authentication failures onto ErrUnauthorized so callers can
// use errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}
