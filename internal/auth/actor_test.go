package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequire(t *testing.T) {
	assert.NoError(t, Require(Actor{Level: LevelAdmin}, LevelPublic))
	assert.NoError(t, Require(Actor{Level: LevelAdmin}, LevelAdmin))
	assert.NoError(t, Require(Actor{Level: LevelAuthed}, LevelAuthed))

	err := Require(Public, LevelAuthed)
	assert.Error(t, err)

	err = Require(Actor{Level: LevelAuthed}, LevelAdmin)
	assert.Error(t, err)
}

func TestAdminKeyVerifier(t *testing.T) {
	hash, err := HashAdminKey("super-secret")
	require.NoError(t, err)

	v := NewAdminKeyVerifier(hash)
	assert.True(t, v.Enabled())
	assert.True(t, v.Verify("super-secret"))
	assert.False(t, v.Verify("wrong"))

	disabled := NewAdminKeyVerifier("")
	assert.False(t, disabled.Enabled())
	assert.False(t, disabled.Verify("anything"))
}

func TestMiddleware_ParseJWTEmail(t *testing.T) {
	secret := "test-secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "admin@example.com"})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	m := NewMiddleware(Config{JWTSecret: secret, AdminEmails: []string{"admin@example.com"}})

	email, ok := m.parseJWTEmail(signed)
	require.True(t, ok)
	assert.Equal(t, "admin@example.com", email)

	_, ok = m.parseJWTEmail("not-a-jwt")
	assert.False(t, ok)
}
