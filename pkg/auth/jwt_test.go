package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", "devflow")
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID, "ada@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("secret", "devflow")
	userID := uuid.New()

	expired, err := svc.GenerateAccessToken(userID, "", -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewJWTService("other", "devflow").GenerateAccessToken(userID, "", time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewJWTService("secret", "someone-else").GenerateAccessToken(userID, "", time.Hour)
	require.NoError(t, err)

	noUser, err := svc.GenerateAccessToken(uuid.Nil, "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"wrong key", otherKey, ErrInvalidToken},
		{"wrong issuer", otherIssuer, ErrInvalidToken},
		{"nil user", noUser, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
