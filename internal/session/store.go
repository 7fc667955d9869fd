// Package session keeps server-side login sessions keyed by an opaque id
// that travels to the browser in a signed cookie.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"tunehub/internal/domain"
)

// DefaultTTL is how long a session stays valid after login.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Session binds an opaque id to the user snapshot taken at login time.
type Session struct {
	ID        string             `json:"id"`
	User      *domain.PublicUser `json:"user"`
	CreatedAt time.Time          `json:"createdAt"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

func (s *Session) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, user *domain.PublicUser, ttl time.Duration) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	// Replace swaps the user snapshot of a live session, keeping its expiry.
	Replace(ctx context.Context, id string, user *domain.PublicUser) error
	// Destroy removes the session. Destroying a missing session is not an error.
	Destroy(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// NewID returns a random 256-bit hex session id.
func NewID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func newSession(user *domain.PublicUser, ttl time.Duration, now time.Time) (*Session, error) {
	if user == nil {
		return nil, errors.New("session user is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        id,
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}
