package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runledger/runledger/domain"
)

func TestTokenService_MintAndVerifyRoundTrip(t *testing.T) {
	svc := newTokenService("test-secret", time.Hour)

	token, err := svc.mint("run1", 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.verify(token)
	require.NoError(t, err)
	assert.Equal(t, "run1", claims.RunID)
	assert.Equal(t, int64(42), claims.SequenceCheckpoint)
}

func TestTokenService_VerifyRejectsExpiredToken(t *testing.T) {
	svc := newTokenService("test-secret", -time.Hour)
	token, err := svc.mint("run1", 0)
	require.NoError(t, err)

	_, err = svc.verify(token)
	assert.ErrorIs(t, err, domain.ErrInvalidResumeToken)
}

func TestTokenService_VerifyRejectsWrongSecret(t *testing.T) {
	svc := newTokenService("secret-a", time.Hour)
	token, err := svc.mint("run1", 0)
	require.NoError(t, err)

	other := newTokenService("secret-b", time.Hour)
	_, err = other.verify(token)
	assert.ErrorIs(t, err, domain.ErrInvalidResumeToken)
}

func TestTokenService_VerifyRejectsGarbage(t *testing.T) {
	svc := newTokenService("test-secret", time.Hour)
	_, err := svc.verify("not-a-real-token")
	assert.ErrorIs(t, err, domain.ErrInvalidResumeToken)
}

func TestHashToken_DeterministicAndDistinct(t *testing.T) {
	h1 := hashToken("token-a")
	h2 := hashToken("token-a")
	h3 := hashToken("token-b")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
