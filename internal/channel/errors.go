package channel

import "errors"

// Package errors. Wrapped errors are retrievable from a handle via Err
// and can be tested with errors.Is.
var (
	// ErrDial indicates the websocket handshake for a channel failed.
	ErrDial = errors.New("channel: dial failed")

	// ErrRead indicates a channel's read loop terminated abnormally.
	ErrRead = errors.New("channel: read failed")
)
