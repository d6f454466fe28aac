package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

func signStaffToken(t *testing.T, secret string, claims models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "sma-auth"})
	now := time.Now()

	valid := signStaffToken(t, "secret", models.JWTClaims{
		UserID: "admin-1",
		Role:   models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sma-auth",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	claims, err := svc.ValidateToken(valid)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	cases := map[string]string{
		"wrong secret": signStaffToken(t, "other", models.JWTClaims{UserID: "admin-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "sma-auth", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}),
		"expired":      signStaffToken(t, "secret", models.JWTClaims{UserID: "admin-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "sma-auth", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}}),
		"wrong issuer": signStaffToken(t, "secret", models.JWTClaims{UserID: "admin-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}),
		"no expiry":    signStaffToken(t, "secret", models.JWTClaims{UserID: "admin-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "sma-auth"}}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
		})
	}
}
