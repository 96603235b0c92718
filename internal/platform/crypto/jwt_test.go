package crypto

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestGenerateToken_WithJTI(t *testing.T) {
	token, jti, err := GenerateToken(secret, "user-1", "MEMBER", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, jti)

	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, "user-1", claims.Sub)
	assert.Equal(t, "MEMBER", claims.Role)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestGenerateToken_UniqueJTIs(t *testing.T) {
	_, jti1, err := GenerateToken(secret, "user-1", "MEMBER", time.Hour)
	require.NoError(t, err)
	_, jti2, err := GenerateToken(secret, "user-1", "MEMBER", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, jti1, jti2)
}

func TestParseToken(t *testing.T) {
	t.Run("invalid signature", func(t *testing.T) {
		token, _, err := GenerateToken("wrong-secret", "user-1", "MEMBER", time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken(secret, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Nil(t, claims)
	})

	t.Run("expired token", func(t *testing.T) {
		c := Claims{
			Sub:  "user-1",
			Role: "MEMBER",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
		require.NoError(t, err)

		_, err = ParseToken(secret, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		c := Claims{Sub: "user-1", Role: "ADMIN"}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString([]byte(secret))
		require.NoError(t, err)

		_, err = ParseToken(secret, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseToken(secret, "invalid.token.here")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestClaimsExpiresIn(t *testing.T) {
	now := time.Now()
	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute))}}
	assert.InDelta(t, (10 * time.Minute).Seconds(), c.ExpiresIn(now).Seconds(), 1)

	c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
	assert.Zero(t, c.ExpiresIn(now))

	assert.Zero(t, (&Claims{}).ExpiresIn(now))
}
