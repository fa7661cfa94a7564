package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestSealer_RoundTrip(t *testing.T) {
	t.Parallel()
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	for _, plaintext := range []string{"", "hunter2", strings.Repeat("p@ss", 40)} {
		sealed, err := s.Seal(plaintext)
		require.NoError(t, err)
		assert.True(t, IsSealed(sealed))

		opened, err := s.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestSealer_NonceIsRandom(t *testing.T) {
	t.Parallel()
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	a, err := s.Seal("secret")
	require.NoError(t, err)
	b, err := s.Seal("secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_PlaintextPassesThrough(t *testing.T) {
	t.Parallel()
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	v, err := s.Open("plain-password")
	require.NoError(t, err)
	assert.Equal(t, "plain-password", v)
}

func TestSealer_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
	}{
		{"not hex", "zz"},
		{"short key", "0123456789abcdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSealer(tt.key)
			assert.Error(t, err)
		})
	}

	s, err := NewSealer(testKey)
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)
	s2, err := NewSealer(other)
	require.NoError(t, err)

	sealed, err := s2.Seal("secret")
	require.NoError(t, err)
	_, err = s.Open(sealed)
	assert.Error(t, err, "wrong key")

	_, err = s.Open(SealedPrefix + "abcd")
	assert.Error(t, err, "too short")

	_, err = s.Open(SealedPrefix + "xyz")
	assert.Error(t, err, "not hex")
}
