package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret", "proximity-service")

	token, err := v.Sign("user-a", time.Minute)
	require.NoError(t, err)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-a", userID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewVerifier("secret-one", "proximity-service")
	verifier := NewVerifier("secret-two", "proximity-service")

	token, err := signer.Sign("user-a", time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	signer := NewVerifier("test-secret", "someone-else")
	verifier := NewVerifier("test-secret", "proximity-service")

	token, err := signer.Sign("user-a", time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret", "proximity-service")

	token, err := v.Sign("user-a", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier("test-secret", "proximity-service")

	_, err := v.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
