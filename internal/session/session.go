package session

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable means the session store could not be reached.
	ErrUnavailable = errors.New("session store unavailable")
)

// Session is a refresh-token grant held by one device.
type Session struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	RefreshTokenHash string `json:"refresh_token_hash"`
	// AccessJTI is the id of the access token most recently issued from this
	// session, so the caller's current session can be recognised.
	AccessJTI  string    `json:"access_jti"`
	UserAgent  string    `json:"user_agent"`
	IPAddress  string    `json:"ip_address"`
	RememberMe bool      `json:"remember_me"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

func (s Session) ttl(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}
