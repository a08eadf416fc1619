package mirror

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenValidator(t *testing.T) {
	tv := NewTokenValidator("secret-a")

	t.Run("round trip", func(t *testing.T) {
		token, err := tv.Issue("ops", time.Minute, reconcileScope)
		require.NoError(t, err)

		claims, err := tv.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "ops", claims.Subject)
		assert.True(t, claims.HasScope(reconcileScope))
		assert.False(t, claims.HasScope("mirror:write"))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewTokenValidator("secret-b").Issue("ops", time.Minute, reconcileScope)
		require.NoError(t, err)

		_, err = tv.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := tv.Issue("ops", -time.Minute, reconcileScope)
		require.NoError(t, err)

		_, err = tv.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		claims := &OperatorClaims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret-a"))
		require.NoError(t, err)

		_, err = tv.Validate(token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &OperatorClaims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    operatorIssuer,
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = tv.Validate(token)
		assert.Error(t, err)
	})
}
