package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/query-kb-api/internal/models"
	appErrors "github.com/noah-isme/query-kb-api/pkg/errors"
)

func newTestAuthService() *AuthService {
	return NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "query-kb-api"})
}

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := newTestAuthService()
	token, expiresAt, err := svc.IssueToken(models.User{ID: "u-1", Role: models.RoleManager, Email: "m@example.org"})
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{ID: "u-1", Role: models.RoleManager}, claims.Actor())
}

func TestAuthServiceRejectsWrongSecret(t *testing.T) {
	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other", Issuer: "query-kb-api"})
	token, _, err := other.IssueToken(models.User{ID: "u-1", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = newTestAuthService().ValidateToken(token)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	svc := newTestAuthService()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.IssueToken(models.User{ID: "u-1", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = newTestAuthService().ValidateToken(token)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceRejectsUnknownRole(t *testing.T) {
	claims := &models.JWTClaims{
		UserID: "u-1",
		Role:   "janitor",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "query-kb-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = newTestAuthService().ValidateToken(token)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
