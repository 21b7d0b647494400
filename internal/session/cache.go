package session

import (
	"context"
	"fmt"
	"sync"

	"washdeck/internal/fleet"
)

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// API is the slice of the fleet client the session cache drives.
type API interface {
	SetToken(token string)
	ClearToken()
	Login(ctx context.Context, username, password string) (*fleet.TokenGrant, error)
	LoginWithKeycard(ctx context.Context, keyCardID, pin string) (*fleet.TokenGrant, error)
	Me(ctx context.Context) (*fleet.Identity, error)
	UpdateUser(ctx context.Context, userID int64, patch fleet.UserPatch) (*fleet.Identity, error)
	LinkKeycard(ctx context.Context, userID int64, keyCardID, pin string) error
	UnlinkKeycard(ctx context.Context, userID int64) error
}

// Cache is the single source of truth for "who am I": it holds the
// current bearer token and a lazily populated snapshot of the
// authenticated operator's identity.
//
// The cache writes through a Store so the session survives process
// restarts, but persistence is a convenience only; a wiped store just
// causes a refetch. Store failures are logged, never surfaced.
//
// The mutex is held across the identity fetch, so concurrent Identity
// calls result in exactly one network fetch per cache fill.
type Cache struct {
	api    API
	store  Store
	logger Logger

	mu       sync.Mutex
	token    string
	identity *fleet.Identity
}

// NewCache creates a session cache over the given fleet API and store.
func NewCache(api API, store Store) *Cache {
	return &Cache{
		api:    api,
		store:  store,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// Resume loads any persisted session from the store. Call once at
// startup, before the first authenticated request.
func (c *Cache) Resume(ctx context.Context) error {
	persisted, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("resuming session: %w", err)
	}
	if persisted == nil || persisted.Token == "" {
		return nil
	}

	c.mu.Lock()
	c.token = persisted.Token
	c.identity = persisted.Identity
	c.mu.Unlock()
	c.api.SetToken(persisted.Token)

	c.logger.Info("session resumed", "cached_identity", persisted.Identity != nil)
	return nil
}

// SetToken stores the bearer token. It does not fetch the identity; any
// previously cached identity is dropped because it may belong to a
// different operator.
func (c *Cache) SetToken(ctx context.Context, token string) {
	c.mu.Lock()
	c.token = token
	c.identity = nil
	c.mu.Unlock()
	c.api.SetToken(token)

	if err := c.store.SaveToken(ctx, token); err != nil {
		c.logger.Warn("persisting token failed", "error", err)
	}
}

// Token returns the current bearer token, if present.
func (c *Cache) Token() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token != ""
}

// Identity returns the authenticated operator's identity.
//
// The cached snapshot is returned unless forceRefresh is set or no cache
// exists, in which case a single authenticated fetch is performed and
// stored. Returns ErrUnauthenticated when no token is present and
// ErrIdentityFetch when the fetch fails; the latter means the session
// should be logged out.
func (c *Cache) Identity(ctx context.Context, forceRefresh bool) (*fleet.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identityLocked(ctx, forceRefresh)
}

// identityLocked implements Identity. The caller must hold c.mu.
func (c *Cache) identityLocked(ctx context.Context, forceRefresh bool) (*fleet.Identity, error) {
	if c.token == "" {
		return nil, ErrUnauthenticated
	}

	if !forceRefresh && c.identity != nil {
		copy := *c.identity
		return &copy, nil
	}

	identity, err := c.api.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentityFetch, err)
	}

	c.identity = identity
	if err := c.store.SaveIdentity(ctx, identity); err != nil {
		c.logger.Warn("persisting identity failed", "error", err)
	}

	copy := *identity
	return &copy, nil
}

// InvalidateIdentity drops the cached identity only; the token is
// retained and the next Identity call performs a fresh fetch.
func (c *Cache) InvalidateIdentity(ctx context.Context) {
	c.mu.Lock()
	c.identity = nil
	c.mu.Unlock()

	if err := c.store.DeleteIdentity(ctx); err != nil {
		c.logger.Warn("dropping persisted identity failed", "error", err)
	}
}

// Clear drops both token and cached identity (logout).
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.token = ""
	c.identity = nil
	c.mu.Unlock()
	c.api.ClearToken()

	if err := c.store.Reset(ctx); err != nil {
		c.logger.Warn("resetting persisted session failed", "error", err)
	}
	c.logger.Info("session cleared")
}

// Login exchanges operator credentials for a bearer token and stores it.
// The identity stays lazy; it is fetched on the first Identity call.
func (c *Cache) Login(ctx context.Context, username, password string) error {
	grant, err := c.api.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.SetToken(ctx, grant.AccessToken)
	c.logger.Info("operator logged in", "user_id", grant.UserID)
	return nil
}

// LoginWithKeycard exchanges a keycard and PIN for a bearer token and stores it.
func (c *Cache) LoginWithKeycard(ctx context.Context, keyCardID, pin string) error {
	grant, err := c.api.LoginWithKeycard(ctx, keyCardID, pin)
	if err != nil {
		return fmt.Errorf("keycard login: %w", err)
	}
	c.SetToken(ctx, grant.AccessToken)
	c.logger.Info("operator logged in via keycard", "user_id", grant.UserID)
	return nil
}

// Rename changes the operator's own username. The server returns the
// updated identity, which replaces the cached snapshot so the next read
// is fresh without an extra fetch.
func (c *Cache) Rename(ctx context.Context, newName string) (*fleet.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	identity, err := c.identityLocked(ctx, false)
	if err != nil {
		return nil, err
	}

	updated, err := c.api.UpdateUser(ctx, identity.UID, fleet.UserPatch{Name: &newName})
	if err != nil {
		return nil, fmt.Errorf("renaming operator: %w", err)
	}

	c.identity = updated
	if err := c.store.SaveIdentity(ctx, updated); err != nil {
		c.logger.Warn("persisting identity failed", "error", err)
	}

	copy := *updated
	return &copy, nil
}

// LinkKeycard attaches a keycard to the operator's own account and
// invalidates the cached identity so the next read is fresh.
func (c *Cache) LinkKeycard(ctx context.Context, keyCardID, pin string) error {
	c.mu.Lock()
	identity, err := c.identityLocked(ctx, false)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	if err := c.api.LinkKeycard(ctx, identity.UID, keyCardID, pin); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("linking keycard: %w", err)
	}

	c.identity = nil
	c.mu.Unlock()

	if err := c.store.DeleteIdentity(ctx); err != nil {
		c.logger.Warn("dropping persisted identity failed", "error", err)
	}
	return nil
}

// UnlinkKeycard detaches the keycard from the operator's own account and
// invalidates the cached identity so the next read is fresh.
func (c *Cache) UnlinkKeycard(ctx context.Context) error {
	c.mu.Lock()
	identity, err := c.identityLocked(ctx, false)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	if err := c.api.UnlinkKeycard(ctx, identity.UID); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("unlinking keycard: %w", err)
	}

	c.identity = nil
	c.mu.Unlock()

	if err := c.store.DeleteIdentity(ctx); err != nil {
		c.logger.Warn("dropping persisted identity failed", "error", err)
	}
	return nil
}
