package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/hkdf"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Log struct {
		Level  string
		Format string
	}
	Database struct {
		Driver          string
		DSN             string
		Host            string
		Port            int
		User            string
		Password        string
		Name            string
		SSLCA           string `mapstructure:"ssl_ca"`
		Path            string
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	}
	Session struct {
		Secret     string
		TTL        time.Duration
		Store      string
		CookieName string `mapstructure:"cookie_name"`
		Secure     bool
		SameSite   string `mapstructure:"same_site"`
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}
	Auth struct {
		// TokenSecret signs API tokens. When empty a key is derived from the
		// session secret so the cookie and token keys never coincide.
		TokenSecret string        `mapstructure:"token_secret"`
		BcryptCost  int           `mapstructure:"bcrypt_cost"`
		CallTimeout time.Duration `mapstructure:"call_timeout"`
		TokenTTL    time.Duration `mapstructure:"token_ttl"`
	}
	CORS struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// a missing .env is fine; real env vars always win
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TUNEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	// 0 lets the driver pick its own port (3306 mysql, 5432 postgres)
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "tunehub")
	v.SetDefault("database.ssl_ca", "")
	v.SetDefault("database.path", "data/tunehub.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.cookie_name", "sid")
	v.SetDefault("session.secure", false)
	v.SetDefault("session.same_site", "lax")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "tunehub:sess")

	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.call_timeout", 5*time.Second)
	v.SetDefault("auth.token_ttl", 15*time.Minute)

	v.SetDefault("cors.allowed_origins", []string{})
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if len(strings.TrimSpace(c.Session.Secret)) < 32 {
		return errors.New("session secret is required and must be at least 32 bytes")
	}
	switch c.Session.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	switch strings.ToLower(c.Session.SameSite) {
	case "", "lax", "strict", "none":
	default:
		return fmt.Errorf("unknown session same_site %q", c.Session.SameSite)
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.Auth.CallTimeout <= 0 {
		return errors.New("auth call timeout must be positive")
	}
	if c.Auth.TokenSecret != "" {
		if len(c.Auth.TokenSecret) < 32 {
			return errors.New("auth token secret must be at least 32 bytes")
		}
		if c.Auth.TokenSecret == c.Session.Secret {
			return errors.New("auth token secret must differ from the session secret")
		}
	}
	return nil
}

// TokenKey returns the HS256 key for API tokens.
func (c Config) TokenKey() ([]byte, error) {
	if c.Auth.TokenSecret != "" {
		return []byte(c.Auth.TokenSecret), nil
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(c.Session.Secret), nil, []byte("tunehub api token v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return key, nil
}

// splitList accepts both list values from config files and a single
// comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
