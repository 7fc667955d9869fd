package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunehub/internal/domain"
)

var secret = []byte(strings.Repeat("s", 32))

func artist() *domain.PublicUser {
	return &domain.PublicUser{UserID: 42, Email: "r@x.com", Username: "rick", Role: domain.RoleArtist}
}

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer(secret, time.Minute)

	raw, exp, err := iss.Issue(artist())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	user, err := iss.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.UserID)
	assert.Equal(t, "rick", user.Username)
	assert.Equal(t, domain.RoleArtist, user.Role)
}

func TestParseRejectsExpired(t *testing.T) {
	iss := NewIssuer(secret, time.Minute)
	raw, _, err := iss.Issue(artist())
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = iss.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	raw, _, err := NewIssuer(secret, time.Minute).Issue(artist())
	require.NoError(t, err)

	_, err = NewIssuer([]byte(strings.Repeat("x", 32)), time.Minute).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		Role: domain.RoleArtist,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewIssuer(secret, time.Minute).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := NewIssuer(secret, time.Minute).Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
