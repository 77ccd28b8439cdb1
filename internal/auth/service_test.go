package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

func TestLogin_RejectsInvalidUsername(t *testing.T) {
	svc := NewService(testJWTConfig())
	ctx := context.Background()

	for _, name := range []string{"", "   ", strings.Repeat("a", MaxUsernameLength+1)} {
		_, _, err := svc.Login(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidUsername, "username %q", name)
	}
}

func TestLogin_TrimsUsernameAndVerifies(t *testing.T) {
	svc := NewService(testJWTConfig())

	token, identity, err := svc.Login(context.Background(), "  alice ")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "alice", identity.DisplayName)
	assert.NotEmpty(t, identity.UserID)

	got, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, identity.UserID, claims.Subject)
}

func TestLogin_SameNameGetsDistinctIDs(t *testing.T) {
	svc := NewService(testJWTConfig())

	_, first, err := svc.Login(context.Background(), "bob")
	require.NoError(t, err)
	_, second, err := svc.Login(context.Background(), "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first.UserID, second.UserID)
}

func TestVerify_Failures(t *testing.T) {
	cfg := testJWTConfig()
	svc := NewService(cfg)

	expired, err := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: cfg.Audience, TTL: -time.Minute}, "u1", "alice")
	require.NoError(t, err)

	otherSecret, err := GenerateToken(&JWTConfig{Secret: []byte("other"), Issuer: cfg.Issuer, Audience: cfg.Audience, TTL: time.Hour}, "u1", "alice")
	require.NoError(t, err)

	wrongAudience, err := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: "elsewhere", TTL: time.Hour}, "u1", "alice")
	require.NoError(t, err)

	noneSigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		reason string
	}{
		{name: "missing", token: "", reason: ReasonMissing},
		{name: "malformed", token: "not-a-jwt", reason: ReasonMalformed},
		{name: "expired", token: expired, reason: ReasonExpired},
		{name: "wrong secret", token: otherSecret, reason: ReasonInvalid},
		{name: "wrong audience", token: wrongAudience, reason: ReasonInvalid},
		{name: "unsigned", token: noneSigned, reason: ReasonInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			require.Error(t, err)

			var authErr *AuthError
			require.True(t, errors.As(err, &authErr), "expected *AuthError, got %T", err)
			assert.Equal(t, tt.reason, authErr.Reason)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}
