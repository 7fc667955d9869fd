package domain

import "time"

// Role is the account type chosen at registration.
type Role string

const (
	RoleListener Role = "Listener"
	RoleArtist   Role = "Artist"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	return r == RoleListener || r == RoleArtist
}

// User represents a registered account of the platform.
type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	FirstName    *string
	LastName     *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the part of a User that is safe to hand to clients.
type PublicUser struct {
	UserID    int64   `json:"userId"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Role      Role    `json:"role"`
}

// Public strips the password hash and timestamps.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		UserID:    u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: cloneString(u.FirstName),
		LastName:  cloneString(u.LastName),
		Role:      u.Role,
	}
}

// ListenerProfile is the role row created for listeners.
type ListenerProfile struct {
	ListenerID int64 `json:"listenerId"`
	UserID     int64 `json:"userId"`
}

// ArtistProfile is the role row created for artists.
type ArtistProfile struct {
	ArtistID       int64  `json:"artistId"`
	UserID         int64  `json:"userId"`
	VerifiedStatus string `json:"verifiedStatus"`
}

// ArtistStatusPending is the verification status of a newly registered artist.
const ArtistStatusPending = "Pending"

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// OptionalString turns an empty string into nil.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
