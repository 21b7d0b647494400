package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"washdeck/internal/fleet"
	"washdeck/internal/infrastructure/database"
)

// Persisted is the durable session state: the bearer token plus the
// cached identity snapshot, when one exists.
type Persisted struct {
	Token    string
	Identity *fleet.Identity
}

// Store defines the interface for session persistence.
// Persistence is a convenience so a session survives a process restart;
// the cache behaves correctly even if the store is wiped between calls.
type Store interface {
	Load(ctx context.Context) (*Persisted, error)
	SaveToken(ctx context.Context, token string) error
	SaveIdentity(ctx context.Context, identity *fleet.Identity) error
	DeleteIdentity(ctx context.Context) error
	Reset(ctx context.Context) error
}

// SQLiteStore implements Store using the console's local SQLite database.
// A single row holds the session; the identity snapshot is stored as JSON.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates the session store and bootstraps its schema.
func NewSQLiteStore(ctx context.Context, db *database.DB) (*SQLiteStore, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS operator_session (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			token         TEXT NOT NULL,
			identity_json TEXT,
			updated_at    TEXT NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating session schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load retrieves the persisted session, or nil when none exists.
// A corrupt identity snapshot is dropped rather than surfaced; the cache
// simply refetches.
func (s *SQLiteStore) Load(ctx context.Context) (*Persisted, error) {
	var token string
	var identityJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT token, identity_json FROM operator_session WHERE id = 1",
	).Scan(&token, &identityJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}

	p := &Persisted{Token: token}
	if identityJSON.Valid && identityJSON.String != "" {
		var identity fleet.Identity
		if json.Unmarshal([]byte(identityJSON.String), &identity) == nil {
			p.Identity = &identity
		}
	}
	return p, nil
}

// SaveToken upserts the bearer token. Any persisted identity snapshot is
// dropped at the same time: a new token may belong to a different
// operator, so the old snapshot cannot be trusted.
func (s *SQLiteStore) SaveToken(ctx context.Context, token string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operator_session (id, token, identity_json, updated_at)
		VALUES (1, ?, NULL, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			identity_json = NULL,
			updated_at = excluded.updated_at`,
		token, now,
	)
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// SaveIdentity stores the identity snapshot alongside the current token.
// A no-op when no session row exists, since an identity without a token
// must never be treated as valid.
func (s *SQLiteStore) SaveIdentity(ctx context.Context, identity *fleet.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		"UPDATE operator_session SET identity_json = ?, updated_at = ? WHERE id = 1",
		string(data), now,
	)
	if err != nil {
		return fmt.Errorf("saving identity: %w", err)
	}
	return nil
}

// DeleteIdentity drops the identity snapshot only; the token is retained.
func (s *SQLiteStore) DeleteIdentity(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		"UPDATE operator_session SET identity_json = NULL, updated_at = ? WHERE id = 1", now)
	if err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	return nil
}

// Reset removes the persisted session entirely (logout).
func (s *SQLiteStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM operator_session WHERE id = 1")
	if err != nil {
		return fmt.Errorf("resetting session: %w", err)
	}
	return nil
}
