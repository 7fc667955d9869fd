package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// DefaultCookieName matches the name the web client already expects.
const DefaultCookieName = "sid"

// CookieOptions control the session cookie attributes.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// Cookie signs the session id into an HttpOnly cookie and reads it back.
type Cookie struct {
	opts  CookieOptions
	codec *securecookie.SecureCookie
}

// NewCookie builds a cookie codec. secret signs the cookie value with HMAC.
func NewCookie(secret []byte, opts CookieOptions) (*Cookie, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if opts.Name == "" {
		opts.Name = DefaultCookieName
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultTTL
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	codec := securecookie.New(secret, nil)
	codec.MaxAge(int(opts.MaxAge.Seconds()))
	return &Cookie{opts: opts, codec: codec}, nil
}

func (c *Cookie) Name() string {
	return c.opts.Name
}

// Write sets the signed session cookie on w.
func (c *Cookie) Write(w http.ResponseWriter, sess *Session) error {
	value, err := c.codec.Encode(c.opts.Name, sess.ID)
	if err != nil {
		return err
	}
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(c.opts.MaxAge.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.opts.Name,
		Value:    value,
		Path:     c.opts.Path,
		Domain:   c.opts.Domain,
		MaxAge:   maxAge,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   c.opts.Secure,
		SameSite: c.opts.SameSite,
	})
	return nil
}

// Read returns the session id carried by r. ok is false when the cookie is
// missing or its signature does not verify.
func (c *Cookie) Read(r *http.Request) (string, bool) {
	ck, err := r.Cookie(c.opts.Name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	var id string
	if err := c.codec.Decode(c.opts.Name, ck.Value, &id); err != nil || id == "" {
		return "", false
	}
	return id, true
}

// Clear expires the cookie on the client.
func (c *Cookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.opts.Name,
		Value:    "",
		Path:     c.opts.Path,
		Domain:   c.opts.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.opts.Secure,
		SameSite: c.opts.SameSite,
	})
}
