package session

import "errors"

// Domain errors for the session package.
var (
	// ErrUnauthenticated is returned when an identity is requested and no
	// bearer token is present. Callers redirect to login.
	ErrUnauthenticated = errors.New("session: not authenticated")

	// ErrIdentityFetch is returned when the authenticated identity fetch
	// fails (e.g. expired token). Callers must treat this as "log the
	// session out".
	ErrIdentityFetch = errors.New("session: identity fetch failed")
)
