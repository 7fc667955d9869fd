package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tunehub/internal/domain"
	"tunehub/internal/password"
	"tunehub/internal/repository"
	"tunehub/internal/session"
	"tunehub/internal/token"
)

// Client-facing messages.
const (
	MsgRegisterRequired   = "Email, username, password and role are required."
	MsgInvalidRole        = "Invalid role. Must be Listener or Artist."
	MsgEmailInUse         = "Email already in use."
	MsgUsernameInUse      = "Username already in use."
	MsgLoginRequired      = "Email and password are required."
	MsgInvalidCredentials = "Invalid email or password."
	MsgNotAuthenticated   = "Not authenticated."
	MsgLogoutFailed       = "Failed to log out."
	MsgInternal           = "Internal server error."
	MsgEmptyEmail         = "Email cannot be empty."
	MsgEmptyUsername      = "Username cannot be empty."
	MsgPasswordRequired   = "Current and new password are required."
	MsgPasswordUnchanged  = "New password must differ from the current password."
	MsgWrongPassword      = "Current password is incorrect."
	MsgPasswordTooLong    = "Password must be at most 72 bytes."
)

const dummyPassword = "tunehub-timing-equalizer"

// RegisterInput is the data submitted on sign-up.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// ProfileInput is a partial profile update. Nil fields stay unchanged; an
// empty first or last name clears it.
type ProfileInput struct {
	Email     *string
	Username  *string
	FirstName *string
	LastName  *string
}

// Health reports the reachability of the service dependencies.
type Health struct {
	Database error
	Sessions error
}

func (h Health) OK() bool {
	return h.Database == nil && h.Sessions == nil
}

// AuthService describes the account and session lifecycle.
type AuthService interface {
	// Register creates the account and immediately logs it in.
	Register(ctx context.Context, in RegisterInput) (*domain.PublicUser, *session.Session, error)
	Login(ctx context.Context, email, password string) (*domain.PublicUser, *session.Session, error)
	CurrentUser(ctx context.Context, sessionID string) (*domain.PublicUser, error)
	Logout(ctx context.Context, sessionID string) error
	UpdateProfile(ctx context.Context, user *domain.PublicUser, sessionID string, in ProfileInput) (*domain.PublicUser, error)
	ChangePassword(ctx context.Context, user *domain.PublicUser, current, next string) error
	// RoleProfile returns the listener or artist row of user, or nil when it has none.
	RoleProfile(ctx context.Context, user *domain.PublicUser) (any, error)
	IssueToken(ctx context.Context, user *domain.PublicUser) (string, time.Time, error)
	// Authenticate resolves a bearer token into a user.
	Authenticate(ctx context.Context, bearer string) (*domain.PublicUser, error)
	Health(ctx context.Context) Health
}

// Options tune the auth service.
type Options struct {
	SessionTTL time.Duration
	// CallTimeout bounds every database and session store call.
	CallTimeout time.Duration
	Logger      *logrus.Logger
}

type authService struct {
	users    repository.UserRepository
	sessions session.Store
	hasher   password.Hasher
	tokens   *token.Issuer
	opts     Options
	log      *logrus.Entry

	dummyHash string
}

func NewAuthService(
	users repository.UserRepository,
	sessions session.Store,
	hasher password.Hasher,
	tokens *token.Issuer,
	opts Options,
) AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = session.DefaultTTL
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	// compared against on unknown emails so both login failures cost one bcrypt run
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		opts.Logger.Warnf("prepare dummy password hash: %v", err)
	}

	return &authService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		tokens:    tokens,
		opts:      opts,
		log:       opts.Logger.WithField("component", "auth"),
		dummyHash: dummy,
	}
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*domain.PublicUser, *session.Session, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	role := domain.Role(in.Role)

	if email == "" || username == "" || in.Password == "" || role == "" {
		return nil, nil, domain.Validation(MsgRegisterRequired)
	}
	if !role.Valid() {
		return nil, nil, domain.Validation(MsgInvalidRole)
	}
	if len(in.Password) > password.MaxLength {
		return nil, nil, domain.Validation(MsgPasswordTooLong)
	}

	// fast path only; the unique keys decide
	if _, taken, err := s.emailExists(ctx, email); err != nil {
		return nil, nil, err
	} else if taken {
		return nil, nil, domain.Conflict(MsgEmailInUse)
	}
	if _, taken, err := s.usernameExists(ctx, username); err != nil {
		return nil, nil, err
	} else if taken {
		return nil, nil, domain.Conflict(MsgUsernameInUse)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, nil, domain.Validation(MsgPasswordTooLong)
		}
		return nil, nil, s.unavailable("hash password", err)
	}

	user := &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    domain.OptionalString(strings.TrimSpace(in.FirstName)),
		LastName:     domain.OptionalString(strings.TrimSpace(in.LastName)),
		Role:         role,
	}

	callCtx, cancel := s.callContext(ctx)
	_, err = s.users.Create(callCtx, user)
	cancel()
	if err != nil {
		if conflict := conflictFor(err); conflict != nil {
			return nil, nil, conflict
		}
		return nil, nil, s.unavailable("create user", err)
	}

	public := user.Public()
	sess, err := s.createSession(ctx, public)
	if err != nil {
		return nil, nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return public, sess, nil
}

func (s *authService) Login(ctx context.Context, email, pw string) (*domain.PublicUser, *session.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || pw == "" {
		return nil, nil, domain.Validation(MsgLoginRequired)
	}

	callCtx, cancel := s.callContext(ctx)
	user, err := s.users.GetByEmail(callCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if s.dummyHash != "" {
				s.hasher.Verify(pw, s.dummyHash)
			}
			return nil, nil, domain.Authentication(MsgInvalidCredentials)
		}
		return nil, nil, s.unavailable("get user by email", err)
	}

	if !s.hasher.Verify(pw, user.PasswordHash) {
		return nil, nil, domain.Authentication(MsgInvalidCredentials)
	}

	public := user.Public()
	sess, err := s.createSession(ctx, public)
	if err != nil {
		return nil, nil, err
	}
	return public, sess, nil
}

func (s *authService) CurrentUser(ctx context.Context, sessionID string) (*domain.PublicUser, error) {
	if sessionID == "" {
		return nil, domain.Authentication(MsgNotAuthenticated)
	}

	callCtx, cancel := s.callContext(ctx)
	sess, err := s.sessions.Get(callCtx, sessionID)
	cancel()
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, domain.Authentication(MsgNotAuthenticated)
		}
		return nil, s.unavailable("get session", err)
	}
	if sess.User == nil {
		return nil, domain.Authentication(MsgNotAuthenticated)
	}
	return sess.User, nil
}

func (s *authService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	callCtx, cancel := s.callContext(ctx)
	err := s.sessions.Destroy(callCtx, sessionID)
	cancel()
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return domain.Unavailable(MsgLogoutFailed, fmt.Errorf("destroy session: %w", err), isTimeout(err))
	}
	return nil
}

func (s *authService) UpdateProfile(ctx context.Context, user *domain.PublicUser, sessionID string, in ProfileInput) (*domain.PublicUser, error) {
	if user == nil {
		return nil, domain.Authentication(MsgNotAuthenticated)
	}

	var upd repository.ProfileUpdate
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email == "" {
			return nil, domain.Validation(MsgEmptyEmail)
		}
		if email != user.Email {
			if id, taken, err := s.emailExists(ctx, email); err != nil {
				return nil, err
			} else if taken && id != user.UserID {
				return nil, domain.Conflict(MsgEmailInUse)
			}
		}
		upd.Email = &email
	}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return nil, domain.Validation(MsgEmptyUsername)
		}
		if username != user.Username {
			if id, taken, err := s.usernameExists(ctx, username); err != nil {
				return nil, err
			} else if taken && id != user.UserID {
				return nil, domain.Conflict(MsgUsernameInUse)
			}
		}
		upd.Username = &username
	}
	if in.FirstName != nil {
		v := strings.TrimSpace(*in.FirstName)
		upd.FirstName = &v
	}
	if in.LastName != nil {
		v := strings.TrimSpace(*in.LastName)
		upd.LastName = &v
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.users.UpdateProfile(callCtx, user.UserID, upd); err != nil {
		if conflict := conflictFor(err); conflict != nil {
			return nil, conflict
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Authentication(MsgNotAuthenticated)
		}
		return nil, s.unavailable("update profile", err)
	}

	fresh, err := s.users.GetByID(callCtx, user.UserID)
	if err != nil {
		return nil, s.unavailable("reload user", err)
	}
	public := fresh.Public()

	// keep /auth/me in line with the row
	if sessionID != "" {
		if err := s.sessions.Replace(callCtx, sessionID, public); err != nil && !errors.Is(err, session.ErrNotFound) {
			return nil, s.unavailable("refresh session", err)
		}
	}
	return public, nil
}

func (s *authService) ChangePassword(ctx context.Context, user *domain.PublicUser, current, next string) error {
	if user == nil {
		return domain.Authentication(MsgNotAuthenticated)
	}
	if current == "" || next == "" {
		return domain.Validation(MsgPasswordRequired)
	}
	if current == next {
		return domain.Validation(MsgPasswordUnchanged)
	}
	if len(next) > password.MaxLength {
		return domain.Validation(MsgPasswordTooLong)
	}

	callCtx, cancel := s.callContext(ctx)
	stored, err := s.users.GetByID(callCtx, user.UserID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Authentication(MsgNotAuthenticated)
		}
		return s.unavailable("get user", err)
	}
	if !s.hasher.Verify(current, stored.PasswordHash) {
		return domain.Authentication(MsgWrongPassword)
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return domain.Validation(MsgPasswordTooLong)
		}
		return s.unavailable("hash password", err)
	}

	callCtx, cancel = s.callContext(ctx)
	defer cancel()
	if err := s.users.UpdatePassword(callCtx, user.UserID, hash); err != nil {
		return s.unavailable("update password", err)
	}
	s.log.WithField("user_id", user.UserID).Info("password changed")
	return nil
}

func (s *authService) RoleProfile(ctx context.Context, user *domain.PublicUser) (any, error) {
	if user == nil {
		return nil, domain.Authentication(MsgNotAuthenticated)
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	var (
		profile any
		err     error
	)
	switch user.Role {
	case domain.RoleListener:
		profile, err = s.users.GetListenerProfile(callCtx, user.UserID)
	case domain.RoleArtist:
		profile, err = s.users.GetArtistProfile(callCtx, user.UserID)
	default:
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, s.unavailable("get role profile", err)
	}
	return profile, nil
}

func (s *authService) IssueToken(_ context.Context, user *domain.PublicUser) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, domain.Authentication(MsgNotAuthenticated)
	}
	if s.tokens == nil {
		return "", time.Time{}, s.unavailable("issue token", errors.New("token issuer not configured"))
	}
	raw, exp, err := s.tokens.Issue(user)
	if err != nil {
		return "", time.Time{}, s.unavailable("issue token", err)
	}
	return raw, exp, nil
}

func (s *authService) Authenticate(_ context.Context, bearer string) (*domain.PublicUser, error) {
	if bearer == "" || s.tokens == nil {
		return nil, domain.Authentication(MsgNotAuthenticated)
	}
	user, err := s.tokens.Parse(bearer)
	if err != nil {
		return nil, domain.Authentication(MsgNotAuthenticated)
	}
	return user, nil
}

func (s *authService) Health(ctx context.Context) Health {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return Health{
		Database: s.users.Ping(callCtx),
		Sessions: s.sessions.Ping(callCtx),
	}
}

func (s *authService) createSession(ctx context.Context, user *domain.PublicUser) (*session.Session, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	sess, err := s.sessions.Create(callCtx, user, s.opts.SessionTTL)
	if err != nil {
		return nil, s.unavailable("create session", err)
	}
	return sess, nil
}

func (s *authService) emailExists(ctx context.Context, email string) (int64, bool, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	id, ok, err := s.users.EmailExists(callCtx, email)
	if err != nil {
		return 0, false, s.unavailable("check email", err)
	}
	return id, ok, nil
}

func (s *authService) usernameExists(ctx context.Context, username string) (int64, bool, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	id, ok, err := s.users.UsernameExists(callCtx, username)
	if err != nil {
		return 0, false, s.unavailable("check username", err)
	}
	return id, ok, nil
}

func (s *authService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.CallTimeout)
}

func (s *authService) unavailable(op string, err error) error {
	return domain.Unavailable(MsgInternal, fmt.Errorf("%s: %w", op, err), isTimeout(err))
}

func conflictFor(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateEmail):
		return domain.Conflict(MsgEmailInUse)
	case errors.Is(err, repository.ErrDuplicateUsername):
		return domain.Conflict(MsgUsernameInUse)
	default:
		return nil
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
