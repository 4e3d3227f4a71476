// ABOUTME: Tests for credential minting and verification
// ABOUTME: Covers roundtrip, expiry, wrong secret, and malformed tokens

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinter_Roundtrip(t *testing.T) {
	m, err := NewMinter([]byte("test-secret"))
	require.NoError(t, err)

	token, err := m.Mint("user-1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// header.payload.signature
	assert.Len(t, strings.Split(token, "."), 3)

	sub, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestMinter_EmptySecret(t *testing.T) {
	_, err := NewMinter(nil)
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestMinter_EmptySubject(t *testing.T) {
	m, err := NewMinter([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Mint("", time.Minute)
	require.ErrorIs(t, err, ErrMissingClaim)
}

func TestMinter_ExpiredToken(t *testing.T) {
	m, err := NewMinter([]byte("test-secret"))
	require.NoError(t, err)

	token, err := m.Mint("user-1", -time.Minute)
	require.NoError(t, err)

	_, err = m.Verify(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestMinter_WrongSecret(t *testing.T) {
	m1, err := NewMinter([]byte("secret-one"))
	require.NoError(t, err)
	m2, err := NewMinter([]byte("secret-two"))
	require.NoError(t, err)

	token, err := m1.Mint("user-1", time.Minute)
	require.NoError(t, err)

	_, err = m2.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMinter_GarbageToken(t *testing.T) {
	m, err := NewMinter([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
