package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus_realtime/internal/domain"
	"campus_realtime/internal/security"
)

func TestResolve(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	t.Run("Valid", func(t *testing.T) {
		tok, err := svc.CreateForUser("u-1")
		require.NoError(t, err)

		uid, err := svc.Resolve(tok)
		require.NoError(t, err)
		assert.Equal(t, "u-1", uid)
	})

	t.Run("Expired", func(t *testing.T) {
		tok, err := svc.CreateWithTTL("u-1", -time.Minute)
		require.NoError(t, err)

		_, err = svc.Resolve(tok)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := security.NewTokenService("other", time.Hour)
		tok, err := other.CreateForUser("u-1")
		require.NoError(t, err)

		_, err = svc.Resolve(tok)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := svc.Resolve("")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}
