package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/backend/internal/models"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	token, err := svc.Generate(&models.User{ID: 42, Email: "o@example.com", Role: models.RoleOrganizer})
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, models.Actor{ID: 42, Role: models.RoleOrganizer}, actor)
}

func TestValidateRejectsForeignAndExpiredTokens(t *testing.T) {
	svc := NewJWTService("secret", 1)
	other := NewJWTService("other-secret", 1)
	token, err := other.Generate(&models.User{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err = svc.Generate(&models.User{ID: 1, Role: models.RoleAdmin})
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaimsActorRejectsUnknownRole(t *testing.T) {
	c := &Claims{Role: "superuser"}
	c.Subject = "5"
	_, err := c.Actor()
	assert.ErrorIs(t, err, ErrInvalidToken)
}
