package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TUNEHUB_SESSION_SECRET", secret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Zero(t, cfg.Database.Port)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, "sid", cfg.Session.CookieName)
	assert.False(t, cfg.Session.Secure)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, 5*time.Second, cfg.Auth.CallTimeout)
	assert.Empty(t, cfg.CORS.AllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TUNEHUB_SESSION_SECRET", secret)
	t.Setenv("TUNEHUB_SESSION_STORE", "redis")
	t.Setenv("TUNEHUB_SESSION_TTL", "2h")
	t.Setenv("TUNEHUB_DATABASE_DRIVER", "sqlite")
	t.Setenv("TUNEHUB_AUTH_CALL_TIMEOUT", "750ms")
	t.Setenv("TUNEHUB_CORS_ALLOWED_ORIGINS", "http://localhost:5173, https://app.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Session.Store)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 750*time.Millisecond, cfg.Auth.CallTimeout)
	assert.Equal(t, []string{"http://localhost:5173", "https://app.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("TUNEHUB_SESSION_SECRET="+secret+"\nTUNEHUB_SERVER_ADDR=127.0.0.1:9000\n"), 0o600))
	// godotenv sets the variables process wide
	t.Setenv("TUNEHUB_SESSION_SECRET", "")
	os.Unsetenv("TUNEHUB_SESSION_SECRET")
	t.Setenv("TUNEHUB_SERVER_ADDR", "")
	os.Unsetenv("TUNEHUB_SERVER_ADDR")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, secret, cfg.Session.Secret)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TUNEHUB_SESSION_SECRET", "short")

	_, err := Load()
	assert.ErrorContains(t, err, "session secret")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.Session.Secret = secret
		c.Session.Store = "memory"
		c.Session.TTL = time.Hour
		c.Database.Driver = "postgres"
		c.Auth.CallTimeout = time.Second
		return c
	}
	require.NoError(t, valid().Validate())

	c := valid()
	c.Session.Store = "file"
	assert.Error(t, c.Validate())

	c = valid()
	c.Database.Driver = "oracle"
	assert.Error(t, c.Validate())

	c = valid()
	c.Session.SameSite = "sometimes"
	assert.Error(t, c.Validate())

	c = valid()
	c.Auth.CallTimeout = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.Auth.TokenSecret = "short"
	assert.Error(t, c.Validate())

	c = valid()
	c.Auth.TokenSecret = secret
	assert.Error(t, c.Validate(), "token secret equal to the session secret")
}

func TestPostgresWithoutPortKeepsDriverDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TUNEHUB_SESSION_SECRET", secret)
	t.Setenv("TUNEHUB_DATABASE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Database.Port)
}

func TestTokenKeyIsSeparateFromSessionSecret(t *testing.T) {
	var c Config
	c.Session.Secret = secret

	derived, err := c.TokenKey()
	require.NoError(t, err)
	assert.Len(t, derived, 32)
	assert.NotEqual(t, []byte(secret), derived)

	again, err := c.TokenKey()
	require.NoError(t, err)
	assert.Equal(t, derived, again, "derivation must be stable across restarts")

	c.Auth.TokenSecret = "fedcba9876543210fedcba9876543210"
	explicit, err := c.TokenKey()
	require.NoError(t, err)
	assert.Equal(t, []byte("fedcba9876543210fedcba9876543210"), explicit)
}
