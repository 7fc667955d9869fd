// Package sqldb implements the credential store on top of database/sql for
// MySQL, PostgreSQL and SQLite.
package sqldb

import (
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const mysqlTLSConfigName = "tunehub"

// Options describes how to reach the database.
type Options struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	// SSLCA is a PEM file used to verify the MySQL server certificate.
	SSLCA string
	// Path is the database file for sqlite.
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens a pooled connection for the configured driver.
func Open(opts Options) (*sql.DB, Dialect, error) {
	dialect, err := DialectByName(opts.Driver)
	if err != nil {
		return nil, Dialect{}, err
	}

	dsn, err := buildDSN(dialect, opts)
	if err != nil {
		return nil, Dialect{}, err
	}

	db, err := sql.Open(dialect.driverName, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("open %s db: %w", dialect.Name, err)
	}

	if dialect.Name == SQLite.Name {
		// one writer keeps sqlite from returning SQLITE_BUSY under concurrent registrations
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
			db.Close()
			return nil, Dialect{}, fmt.Errorf("enable foreign keys: %w", err)
		}
		return db, dialect, nil
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return db, dialect, nil
}

func buildDSN(d Dialect, opts Options) (string, error) {
	if opts.DSN != "" {
		return opts.DSN, nil
	}

	switch d.Name {
	case SQLite.Name:
		if opts.Path == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		if opts.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
				return "", fmt.Errorf("create db dir: %w", err)
			}
		}
		return opts.Path, nil
	case Postgres.Name:
		port := opts.Port
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(opts.User, opts.Password),
			Host:   hostPort(opts.Host, port),
			Path:   "/" + opts.Name,
		}
		return u.String(), nil
	default:
		port := opts.Port
		if port == 0 {
			port = 3306
		}
		cfg := mysql.NewConfig()
		cfg.User = opts.User
		cfg.Passwd = opts.Password
		cfg.Net = "tcp"
		cfg.Addr = hostPort(opts.Host, port)
		cfg.DBName = opts.Name
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		// report matched rows so a no-op profile update is not mistaken for a missing user
		cfg.ClientFoundRows = true
		if opts.SSLCA != "" {
			if err := registerMySQLCA(opts.SSLCA); err != nil {
				return "", err
			}
			cfg.TLSConfig = mysqlTLSConfigName
		}
		return cfg.FormatDSN(), nil
	}
}

func registerMySQLCA(path string) error {
	pem, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read db ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("db ca %s: no certificates found", path)
	}
	if err := mysql.RegisterTLSConfig(mysqlTLSConfigName, &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}); err != nil {
		return fmt.Errorf("register db tls config: %w", err)
	}
	return nil
}

func hostPort(host string, port int) string {
	if host == "" {
		host = "127.0.0.1"
	}
	return host + ":" + strconv.Itoa(port)
}
