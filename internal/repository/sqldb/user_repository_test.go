package sqldb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunehub/internal/domain"
	"tunehub/internal/repository"
)

func newSQLiteRepo(t *testing.T) *UserRepository {
	t.Helper()
	db, dialect, err := Open(Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "tunehub.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewUserRepository(db, dialect)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func newUser(email, username string, role domain.Role) *domain.User {
	return &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		Role:         role,
	}
}

func TestCreateAndLookup(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	u := newUser("a@x.com", "alice", domain.RoleListener)
	u.FirstName = domain.OptionalString("Alice")
	id, err := repo.Create(ctx, u)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, u.ID)

	got, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, domain.RoleListener, got.Role)
	require.NotNil(t, got.FirstName)
	assert.Equal(t, "Alice", *got.FirstName)
	assert.Nil(t, got.LastName)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)

	byID, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)

	existingID, ok, err := repo.UsernameExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, existingID)

	_, ok, err = repo.EmailExists(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetByEmailNotFound(t *testing.T) {
	repo := newSQLiteRepo(t)

	_, err := repo.GetByEmail(context.Background(), "missing@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateCreatesRoleProfile(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	listener := newUser("l@x.com", "lisa", domain.RoleListener)
	_, err := repo.Create(ctx, listener)
	require.NoError(t, err)
	artist := newUser("r@x.com", "rick", domain.RoleArtist)
	_, err = repo.Create(ctx, artist)
	require.NoError(t, err)

	lp, err := repo.GetListenerProfile(ctx, listener.ID)
	require.NoError(t, err)
	assert.Equal(t, listener.ID, lp.UserID)

	ap, err := repo.GetArtistProfile(ctx, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ArtistStatusPending, ap.VerifiedStatus)

	_, err = repo.GetArtistProfile(ctx, listener.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateReportsDuplicates(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, newUser("a@x.com", "alice", domain.RoleListener))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newUser("a@x.com", "other", domain.RoleListener))
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)

	_, err = repo.Create(ctx, newUser("b@x.com", "alice", domain.RoleArtist))
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)

	// the failed transactions must not leave orphan role rows behind
	_, ok, err := repo.EmailExists(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentCreateKeepsEmailUnique(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, newUser("race@x.com", fmt.Sprintf("user%d", i), domain.RoleListener))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, repository.ErrDuplicateEmail):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, dupes)
}

func TestUpdateProfileAndPassword(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	u := newUser("a@x.com", "alice", domain.RoleListener)
	_, err := repo.Create(ctx, u)
	require.NoError(t, err)
	_, err = repo.Create(ctx, newUser("b@x.com", "bob", domain.RoleListener))
	require.NoError(t, err)

	err = repo.UpdateProfile(ctx, u.ID, repository.ProfileUpdate{
		Username:  domain.OptionalString("alicia"),
		FirstName: domain.OptionalString("Alicia"),
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alicia", got.Username)
	assert.Equal(t, "Alicia", *got.FirstName)

	err = repo.UpdateProfile(ctx, u.ID, repository.ProfileUpdate{Email: domain.OptionalString("b@x.com")})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)

	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "$2a$10$new"))
	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$new", got.PasswordHash)

	assert.ErrorIs(t, repo.UpdatePassword(ctx, 9999, "x"), repository.ErrNotFound)
	assert.NoError(t, repo.UpdateProfile(ctx, u.ID, repository.ProfileUpdate{}))
}

func TestPing(t *testing.T) {
	repo := newSQLiteRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestMySQLDuplicateKeyMapping(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db, MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `User`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice' for key 'User.uq_user_username'"})
	mock.ExpectRollback()

	_, err = repo.Create(context.Background(), newUser("a@x.com", "alice", domain.RoleListener))
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueViolationIgnoresDuplicateValue(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		err     error
		column  string
	}{
		{
			name:    "mysql dotted username",
			dialect: MySQL,
			err:     &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'john.email' for key 'User.uq_user_username'"},
			column:  "username",
		},
		{
			name:    "mysql username shaped like a key",
			dialect: MySQL,
			err:     &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x for key uq_user_username' for key 'uq_user_email'"},
			column:  "email",
		},
		{
			name:    "mysql email",
			dialect: MySQL,
			err:     &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@x.com' for key 'User.uq_user_email'"},
			column:  "email",
		},
		{
			name:    "postgres dotted username",
			dialect: Postgres,
			err: &pgconn.PgError{Code: "23505", ConstraintName: "uq_user_username",
				Detail: "Key (username)=(john.email) already exists."},
			column: "username",
		},
		{
			name:    "postgres email",
			dialect: Postgres,
			err: &pgconn.PgError{Code: "23505", ConstraintName: "uq_user_email",
				Detail: "Key (email)=(a@x.com) already exists."},
			column: "email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			column, ok := tt.dialect.uniqueViolation(fmt.Errorf("insert user: %w", tt.err))
			assert.True(t, ok)
			assert.Equal(t, tt.column, column)
		})
	}

	_, ok := Postgres.uniqueViolation(&pgconn.PgError{Code: "23503", ConstraintName: "uq_user_email"})
	assert.False(t, ok)
}

func TestMySQLDottedUsernameIsUsernameConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db, MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `User`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'john.email' for key 'User.uq_user_username'"})
	mock.ExpectRollback()

	_, err = repo.Create(context.Background(), newUser("j@x.com", "john.email", domain.RoleListener))
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)
	assert.NotErrorIs(t, err, repository.ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteDottedUsernameIsUsernameConflict(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, newUser("j@x.com", "john.email", domain.RoleListener))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newUser("k@x.com", "john.email", domain.RoleArtist))
	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)
}

func TestMySQLOtherErrorIsNotConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db, MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `User`").
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'tunehub.User' doesn't exist"})
	mock.ExpectRollback()

	_, err = repo.Create(context.Background(), newUser("a@x.com", "alice", domain.RoleListener))
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrDuplicateEmail)
	assert.NotErrorIs(t, err, repository.ErrDuplicateUsername)
}

func TestReadsRetryTransientErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db, MySQL)

	mock.ExpectQuery("SELECT UserID FROM `User` WHERE Email = ?").
		WithArgs("a@x.com").
		WillReturnError(mysql.ErrInvalidConn)
	mock.ExpectQuery("SELECT UserID FROM `User` WHERE Email = ?").
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"UserID"}).AddRow(int64(3)))

	id, ok, err := repo.EmailExists(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRebind(t *testing.T) {
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", Postgres.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t, "WHERE x = ?", MySQL.rebind("WHERE x = ?"))
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("")
	require.NoError(t, err)
	assert.Equal(t, MySQL.Name, d.Name)

	d, err = DialectByName("postgresql")
	require.NoError(t, err)
	assert.Equal(t, Postgres.Name, d.Name)

	_, err = DialectByName("oracle")
	assert.Error(t, err)
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN(Postgres, Options{Host: "db", User: "app", Password: "p@ss/word", Name: "tunehub"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/tunehub", dsn)

	dsn, err = buildDSN(MySQL, Options{Host: "db", User: "app", Password: "secret", Name: "tunehub"})
	require.NoError(t, err)
	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:3306", cfg.Addr)
	assert.True(t, cfg.ParseTime)
	assert.True(t, cfg.ClientFoundRows)

	dsn, err = buildDSN(MySQL, Options{DSN: "user:pw@tcp(x:1)/y"})
	require.NoError(t, err)
	assert.Equal(t, "user:pw@tcp(x:1)/y", dsn)
}
