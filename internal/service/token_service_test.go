package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "sessions", Audience: []string{"insights"}})
	token, err := svc.IssueToken("user-1", models.RoleTeacher, time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestTokenServiceRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret"})
	expired, err := svc.IssueToken("user-1", models.RoleTeacher, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	other := NewTokenService(TokenConfig{Secret: "other"})
	foreign, err := other.IssueToken("user-1", models.RoleTeacher, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.True(t, appErrors.IsUnauthorized(err))
}

func TestTokenServiceChecksIssuer(t *testing.T) {
	issuer := NewTokenService(TokenConfig{Secret: "secret", Issuer: "someone-else"})
	token, err := issuer.IssueToken("user-1", models.RoleAdmin, time.Minute)
	require.NoError(t, err)

	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "sessions"})
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
