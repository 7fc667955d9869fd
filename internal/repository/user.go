package repository

import (
	"context"
	"errors"

	"tunehub/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when an insert or update violates the email unique key.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrDuplicateUsername is returned when an insert or update violates the username unique key.
	ErrDuplicateUsername = errors.New("duplicate username")
)

// ProfileUpdate lists the user columns that may change after registration.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Email     *string
	Username  *string
	FirstName *string
	LastName  *string
}

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Ping(ctx context.Context) error
	// Create inserts the user together with its role profile row.
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	EmailExists(ctx context.Context, email string) (int64, bool, error)
	UsernameExists(ctx context.Context, username string) (int64, bool, error)
	UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	GetListenerProfile(ctx context.Context, userID int64) (*domain.ListenerProfile, error)
	GetArtistProfile(ctx context.Context, userID int64) (*domain.ArtistProfile, error)
}
