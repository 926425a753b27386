package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryhub/internal/errs"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens, err := NewTokens("secret", 0)
	require.NoError(t, err)

	id := uuid.New()
	token, expiresAt, err := tokens.Issue(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*24*time.Hour), expiresAt, time.Minute)

	got, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTokensRejectExpired(t *testing.T) {
	tokens, err := NewTokens("secret", DefaultTokenTTL)
	require.NoError(t, err)
	tokens.now = func() time.Time { return time.Now().Add(-11 * 24 * time.Hour) }

	token, _, err := tokens.Issue(uuid.New())
	require.NoError(t, err)

	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestTokensRejectForeignSignature(t *testing.T) {
	issuer, err := NewTokens("secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := NewTokens("secret-b", time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.Issue(uuid.New())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestTokensRejectGarbage(t *testing.T) {
	tokens, err := NewTokens("secret", time.Hour)
	require.NoError(t, err)

	for _, raw := range []string{"", "abc", "a.b.c"} {
		_, err := tokens.Verify(raw)
		assert.ErrorIs(t, err, errs.ErrUnauthenticated, raw)
	}
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens("", time.Hour)
	assert.Error(t, err)
}
