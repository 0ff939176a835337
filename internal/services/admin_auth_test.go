package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuth_IssueAndVerify(t *testing.T) {
	auth := NewAdminAuth("top-secret")

	token, err := auth.IssueToken("ops@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := auth.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestAdminAuth_Rejects(t *testing.T) {
	auth := NewAdminAuth("top-secret")

	sign := func(claims jwt.MapClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", sign(jwt.MapClaims{"sub": "x", "role": "admin", "exp": exp}, "other")},
		{"expired", sign(jwt.MapClaims{"sub": "x", "role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}, "top-secret")},
		{"no expiry", sign(jwt.MapClaims{"sub": "x", "role": "admin"}, "top-secret")},
		{"not admin", sign(jwt.MapClaims{"sub": "x", "role": "user", "exp": exp}, "top-secret")},
		{"no subject", sign(jwt.MapClaims{"role": "admin", "exp": exp}, "top-secret")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.VerifyToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
