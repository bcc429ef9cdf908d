package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/susu/internal/models"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate(models.Actor{UserID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)

	actor, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", actor.UserID)
	assert.Equal(t, models.RoleAdmin, actor.Role)
}

func TestJWTManager_Generate(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	_, err := m.Generate(models.Actor{Role: models.RoleMember})
	assert.Error(t, err)
	_, err = m.Generate(models.Actor{UserID: "u1", Role: "owner"})
	assert.Error(t, err)
}

func TestJWTManager_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := NewJWTManager("test-secret", time.Hour)
	m.now = func() time.Time { return now }

	valid, err := m.Generate(models.Actor{UserID: "u1", Role: models.RoleMember})
	require.NoError(t, err)

	other := NewJWTManager("other-secret", time.Hour)
	other.now = m.now
	forged, err := other.Generate(models.Actor{UserID: "u1", Role: models.RoleSuperAdmin})
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		at    time.Time
	}{
		{"garbage", "not-a-token", now},
		{"wrong secret", forged, now},
		{"expired", valid, now.Add(2 * time.Hour)},
		{"missing role", noRole, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			m.now = func() time.Time { return at }
			_, err := m.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
