// Package session holds the authenticated operator context for the console.
//
// The Cache is the single source of truth for "who am I" across screens:
// it owns the bearer token and a lazily populated identity snapshot.
// Screens never read ambient storage directly; they go through the cache,
// which has defined invalidation entry points:
//
//   - SetToken / Login / LoginWithKeycard: new token, identity dropped
//   - InvalidateIdentity: identity dropped, token retained
//   - Rename / LinkKeycard / UnlinkKeycard: self-mutations that refresh
//     or invalidate the snapshot so the next read is fresh
//   - Clear: logout, everything dropped
//
// If no token is present, no cached identity is ever treated as valid.
//
// The session is written through a SQLite-backed Store so it survives
// process restarts. Persistence is a convenience, not a correctness
// requirement: with a wiped store the cache simply refetches.
package session
