package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndVerify(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("super-secret", time.Hour)
	id := Identity{ID: "user-123", Email: "ivan@example.com", Name: "Ivan"}

	tok, err := svc.Issue(id)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity())
	require.NotNil(t, claims.ExpiresAt)
	require.NotNil(t, claims.IssuedAt)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestTokenService_DefaultTTL(t *testing.T) {
	t.Parallel()

	svc := NewTokenService("k", 0)
	assert.Equal(t, 7*24*time.Hour, svc.TTL())
}

func TestTokenService_Expired(t *testing.T) {
	t.Parallel()

	issuer := NewTokenService("secret", DefaultTokenTTL)
	issuer.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }

	tok, err := issuer.Issue(Identity{ID: "u1"})
	require.NoError(t, err)

	verifier := NewTokenService("secret", DefaultTokenTTL)
	_, err = verifier.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Rejects(t *testing.T) {
	t.Parallel()

	good := NewTokenService("right-secret", time.Hour)
	tok, err := good.Issue(Identity{ID: "u2"})
	require.NoError(t, err)

	noneTok, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID: "u2",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: "u2"}).
		SignedString([]byte("right-secret"))
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		svc   *TokenService
		token string
	}{
		{"wrong secret", NewTokenService("wrong-secret", time.Hour), tok},
		{"malformed", good, "not.a.jwt"},
		{"empty", good, ""},
		{"tampered payload", good, tampered},
		{"alg none", good, noneTok},
		{"no expiry", good, noExpTok},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
