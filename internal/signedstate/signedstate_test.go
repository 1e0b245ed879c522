package signedstate

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	token := Sign("state-abc123", "org-secret")
	stateID, err := Verify(token, "org-secret", 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, "state-abc123", stateID)
}

func TestVerifyWrongSecret(t *testing.T) {
	token := Sign("state-abc123", "org-secret")
	_, err := Verify(token, "another-secret", 5*time.Minute)
	require.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifyTamperedToken(t *testing.T) {
	token := Sign("state-abc123", "org-secret")
	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	// Flipping any byte of the payload must fail verification.
	for i := range raw {
		mutated := append([]byte(nil), raw...)
		mutated[i] ^= 0x01
		bad := base64.RawURLEncoding.EncodeToString(mutated)
		_, err := Verify(bad, "org-secret", 5*time.Minute)
		require.Error(t, err, "byte %d", i)
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, token := range []string{"", "!!!!", base64.RawURLEncoding.EncodeToString([]byte("nodots")), base64.RawURLEncoding.EncodeToString([]byte("a.b"))} {
		_, err := Verify(token, "org-secret", 5*time.Minute)
		require.ErrorIs(t, err, ErrMalformedToken)
	}
}

func TestVerifyExpired(t *testing.T) {
	issued := time.Now().Add(-10 * time.Minute)
	token := signAt("state-abc123", "org-secret", issued)

	_, err := Verify(token, "org-secret", 5*time.Minute)
	require.ErrorIs(t, err, ErrExpired)

	// Still valid within the window.
	stateID, err := Verify(token, "org-secret", 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, "state-abc123", stateID)
}

func TestVerifyFutureTimestamp(t *testing.T) {
	token := signAt("state-abc123", "org-secret", time.Now().Add(10*time.Minute))
	_, err := Verify(token, "org-secret", 5*time.Minute)
	require.ErrorIs(t, err, ErrExpired)
}
