package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "b8a3c2267dc85f855dea9b46b452bf20"

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestNewTokenGenerator(t *testing.T) {
	tg := NewTokenGenerator("secret", time.Hour)

	assert.NotNil(t, tg)
	assert.Equal(t, "secret", tg.secret)
	assert.Equal(t, time.Hour, tg.accessTokenExpiry)
}

func TestTokenGenerator_RoundTrip(t *testing.T) {
	tg := NewTokenGenerator(testSecret, time.Hour)

	token, err := tg.GenerateAccessToken(123)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	userID, err := tg.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(123), userID)
}

func TestTokenGenerator_ValidateAccessToken(t *testing.T) {
	tg := NewTokenGenerator(testSecret, time.Hour)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name        string
		token       func(t *testing.T) string
		expectedID  int64
		expectedErr string
	}{
		{
			name: "string user id",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "42", "type": "access", "exp": exp})
			},
			expectedID: 42,
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": 1, "type": "access", "exp": time.Now().Add(-time.Minute).Unix()})
			},
			expectedErr: "failed to parse token",
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte("other-secret"), jwt.MapClaims{"user_id": 1, "type": "access", "exp": exp})
			},
			expectedErr: "failed to parse token",
		},
		{
			name: "HS512 is rejected",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"user_id": 1, "type": "access", "exp": exp})
			},
			expectedErr: "failed to parse token",
		},
		{
			name: "refresh token",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"type": "refresh", "exp": exp})
			},
			expectedErr: "not an access token",
		},
		{
			name: "missing user id",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"type": "access", "exp": exp})
			},
			expectedErr: "user_id not found",
		},
		{
			name: "fractional user id",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": 1.5, "type": "access", "exp": exp})
			},
			expectedErr: "positive integer",
		},
		{
			name: "non numeric string user id",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": "abc", "type": "access", "exp": exp})
			},
			expectedErr: "positive integer",
		},
		{
			name:        "malformed token",
			token:       func(t *testing.T) string { return "not.a.token" },
			expectedErr: "failed to parse token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := tg.ValidateAccessToken(tt.token(t))

			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
				assert.Zero(t, userID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedID, userID)
		})
	}
}
