package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tunehub/internal/domain"
	"tunehub/internal/repository"
)

const userColumns = `UserID, Email, Username, Password, FirstName, LastName, Role, CreatedAt, UpdatedAt`

type UserRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewUserRepository(db *sql.DB, dialect Dialect) *UserRepository {
	return &UserRepository{db: db, dialect: dialect}
}

func (r *UserRepository) q(query string) string {
	return r.dialect.rebind(strings.ReplaceAll(query, "{user}", r.dialect.userTable))
}

func (r *UserRepository) Init(ctx context.Context) error {
	if err := Migrate(ctx, r.db, r.dialect); err != nil {
		return fmt.Errorf("init user repository: %w", err)
	}
	return nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	var ok int
	if err := r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (int64, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := withTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		id, err := r.insertUser(ctx, tx, user)
		if err != nil {
			return err
		}
		user.ID = id

		switch user.Role {
		case domain.RoleListener:
			_, err = tx.ExecContext(ctx, r.q(`INSERT INTO Listener (UserID) VALUES (?)`), id)
		case domain.RoleArtist:
			_, err = tx.ExecContext(ctx, r.q(`INSERT INTO Artist (UserID, VerifiedStatus) VALUES (?, ?)`),
				id, domain.ArtistStatusPending)
		}
		if err != nil {
			return fmt.Errorf("insert %s profile: %w", strings.ToLower(string(user.Role)), err)
		}
		return nil
	})
	if err != nil {
		user.ID = 0
		return 0, err
	}
	return user.ID, nil
}

func (r *UserRepository) insertUser(ctx context.Context, tx DBTX, user *domain.User) (int64, error) {
	query := `
INSERT INTO {user} (Email, Password, Username, FirstName, LastName, Role, CreatedAt, UpdatedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		user.Email,
		user.PasswordHash,
		user.Username,
		nullString(user.FirstName),
		nullString(user.LastName),
		string(user.Role),
		user.CreatedAt,
		user.UpdatedAt,
	}

	if r.dialect.returning {
		var id int64
		if err := tx.QueryRowContext(ctx, r.q(query+` RETURNING UserID`), args...).Scan(&id); err != nil {
			return 0, r.mapWriteErr("insert user", err)
		}
		return id, nil
	}

	res, err := tx.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return 0, r.mapWriteErr("insert user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user last insert id: %w", err)
	}
	return id, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM {user} WHERE Email = ?`, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM {user} WHERE UserID = ?`, id)
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (int64, bool, error) {
	return r.exists(ctx, `SELECT UserID FROM {user} WHERE Email = ?`, email)
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (int64, bool, error) {
	return r.exists(ctx, `SELECT UserID FROM {user} WHERE Username = ?`, username)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, upd repository.ProfileUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.Email != nil {
		sets = append(sets, "Email = ?")
		args = append(args, *upd.Email)
	}
	if upd.Username != nil {
		sets = append(sets, "Username = ?")
		args = append(args, *upd.Username)
	}
	if upd.FirstName != nil {
		sets = append(sets, "FirstName = ?")
		args = append(args, nullString(upd.FirstName))
	}
	if upd.LastName != nil {
		sets = append(sets, "LastName = ?")
		args = append(args, nullString(upd.LastName))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "UpdatedAt = ?")
	args = append(args, time.Now().UTC(), id)

	query := `UPDATE {user} SET ` + strings.Join(sets, ", ") + ` WHERE UserID = ?`
	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return r.mapWriteErr("update user", err)
	}
	return requireAffected(res)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, r.q(`UPDATE {user} SET Password = ?, UpdatedAt = ? WHERE UserID = ?`),
		hash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(res)
}

func (r *UserRepository) GetListenerProfile(ctx context.Context, userID int64) (*domain.ListenerProfile, error) {
	var p domain.ListenerProfile
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx, r.q(`SELECT ListenerID, UserID FROM Listener WHERE UserID = ?`), userID).
			Scan(&p.ListenerID, &p.UserID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get listener profile: %w", err)
	}
	return &p, nil
}

func (r *UserRepository) GetArtistProfile(ctx context.Context, userID int64) (*domain.ArtistProfile, error) {
	var p domain.ArtistProfile
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx, r.q(`SELECT ArtistID, UserID, VerifiedStatus FROM Artist WHERE UserID = ?`), userID).
			Scan(&p.ArtistID, &p.UserID, &p.VerifiedStatus)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get artist profile: %w", err)
	}
	return &p, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user *domain.User
	err := withReadRetry(ctx, func(ctx context.Context) error {
		var err error
		user, err = scanUser(r.db.QueryRowContext(ctx, r.q(query), arg))
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) exists(ctx context.Context, query string, arg any) (int64, bool, error) {
	var id int64
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.db.QueryRowContext(ctx, r.q(query), arg).Scan(&id)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("user exists: %w", err)
	}
	return id, true, nil
}

func (r *UserRepository) mapWriteErr(op string, err error) error {
	column, ok := r.dialect.uniqueViolation(err)
	if !ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch column {
	case "email":
		return fmt.Errorf("%s: %w", op, repository.ErrDuplicateEmail)
	case "username":
		return fmt.Errorf("%s: %w", op, repository.ErrDuplicateUsername)
	default:
		return fmt.Errorf("%s: unique violation: %w", op, err)
	}
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user      domain.User
		role      string
		firstName sql.NullString
		lastName  sql.NullString
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&firstName,
		&lastName,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	if firstName.Valid {
		user.FirstName = &firstName.String
	}
	if lastName.Valid {
		user.LastName = &lastName.String
	}
	return &user, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ repository.UserRepository = (*UserRepository)(nil)
