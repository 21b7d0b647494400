package command

import (
	"errors"
	"fmt"
)

// Package errors provide programmatic error checking with errors.Is.
var (
	// ErrRejected indicates a command was refused, either locally before
	// dispatch or by the fleet backend.
	ErrRejected = errors.New("command: rejected")

	// ErrInvalidDuration indicates a start command with a non-positive
	// duration.
	ErrInvalidDuration = errors.New("command: duration must be positive")
)

// RejectedError carries the reason a command was refused. It matches
// ErrRejected under errors.Is.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("command rejected: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }
