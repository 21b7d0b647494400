package fleet

import "time"

// Identity is the authenticated operator profile returned by /auth/me.
type Identity struct {
	UID          int64     `json:"uid"`
	Name         string    `json:"name"`
	Cash         float64   `json:"cash"`
	IsAdmin      bool      `json:"is_admin"`
	HasKeycard   bool      `json:"has_keycard"`
	CreationTime time.Time `json:"creation_time"`
}

// TokenGrant is the response to a successful login.
type TokenGrant struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
}

// UserPatch is a partial update for a user record. Nil fields are omitted
// from the request body and left unchanged by the server.
type UserPatch struct {
	Name *string  `json:"name,omitempty"`
	Cash *float64 `json:"cash,omitempty"`
}

// startRequest is the body of POST /device/start/{id}.
type startRequest struct {
	UserID          int64 `json:"user_id"`
	DurationMinutes int   `json:"duration_minutes"`
}

// keycardRequest is the body of keycard link and keycard login calls.
type keycardRequest struct {
	KeyCardID string `json:"key_card_id"`
	PIN       string `json:"pin"`
}

// errorBody is the server's error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}
