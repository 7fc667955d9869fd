package sqldb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect captures the per-engine differences of the credential store.
type Dialect struct {
	Name       string
	driverName string
	goose      goose.Dialect
	userTable  string
	// returning reports whether inserts must use RETURNING instead of LastInsertId.
	returning bool
}

var (
	MySQL = Dialect{
		Name:       "mysql",
		driverName: "mysql",
		goose:      goose.DialectMySQL,
		userTable:  "`User`",
	}
	Postgres = Dialect{
		Name:       "postgres",
		driverName: "pgx",
		goose:      goose.DialectPostgres,
		userTable:  `"User"`,
		returning:  true,
	}
	SQLite = Dialect{
		Name:       "sqlite",
		driverName: "sqlite",
		goose:      goose.DialectSQLite3,
		userTable:  `"User"`,
	}
)

// DialectByName resolves a configured driver name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}

// rebind rewrites ? placeholders into the engine's native form.
func (d Dialect) rebind(query string) string {
	if d.Name != Postgres.Name {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// uniqueViolation reports whether err is a unique key violation and, when it
// can tell, which column ("email" or "username") caused it. MySQL and
// Postgres are matched on the constraint name only, since their messages
// also carry the offending value.
func (d Dialect) uniqueViolation(err error) (string, bool) {
	var (
		myErr *mysql.MySQLError
		pgErr *pgconn.PgError
		sqErr *sqlite.Error
	)
	switch {
	case errors.As(err, &myErr):
		if myErr.Number != 1062 {
			return "", false
		}
		return columnForConstraint(mysqlDuplicateKey(myErr.Message)), true
	case errors.As(err, &pgErr):
		if pgErr.Code != "23505" {
			return "", false
		}
		return columnForConstraint(pgErr.ConstraintName), true
	case errors.As(err, &sqErr):
		if sqErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE && sqErr.Code() != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return "", false
		}
		// sqlite names the columns, never the value: "UNIQUE constraint failed: User.Email"
		msg := strings.ToLower(sqErr.Error())
		switch {
		case strings.Contains(msg, ".email"):
			return "email", true
		case strings.Contains(msg, ".username"):
			return "username", true
		}
		return "", true
	default:
		return "", false
	}
}

// mysqlDuplicateKey extracts the key name from
// "Duplicate entry '<value>' for key '<table>.<key>'".
func mysqlDuplicateKey(msg string) string {
	i := strings.LastIndex(msg, " for key '")
	if i < 0 {
		return ""
	}
	key := strings.TrimSuffix(msg[i+len(" for key '"):], "'")
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		key = key[dot+1:]
	}
	return key
}

func columnForConstraint(name string) string {
	switch strings.ToLower(name) {
	case "uq_user_email":
		return "email"
	case "uq_user_username":
		return "username"
	default:
		return ""
	}
}
