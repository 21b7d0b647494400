// Package fleet provides the REST client for the fleet server.
//
// Every component of the console issues its HTTP calls through one shared
// Client: the session cache fetches identities, the device registry loads
// snapshots, and the command dispatcher starts and stops devices. The
// client holds the current bearer token, which the session cache injects
// on login and clears on logout.
//
// # Endpoints
//
//	POST   /auth/token             form-encoded login (unauthenticated)
//	POST   /auth/token/keycard     keycard + PIN login (unauthenticated)
//	GET    /auth/me                authenticated identity
//	GET    /device/all             bulk device snapshot
//	POST   /device/start/{id}      start command
//	POST   /device/stop/{id}       stop command
//	PATCH  /user/{id}              partial user update
//	POST   /user/{id}/keycard      link keycard
//	DELETE /user/{id}/keycard      unlink keycard
//
// # Error Handling
//
// Non-2xx responses decode the server's {detail} envelope into *APIError.
// A 401 unwraps to ErrUnauthorized, which callers treat as a signal to
// force re-authentication.
package fleet
