package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashOpaque(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashOpaque("abc"))
	assert.Equal(t, HashOpaque("token"), HashOpaque("token"))
	assert.NotEqual(t, HashOpaque("token"), HashOpaque("token2"))
}

func TestConstantTimeEquals(t *testing.T) {
	assert.True(t, ConstantTimeEquals("same", "same"))
	assert.False(t, ConstantTimeEquals("same", "Same"))
	assert.False(t, ConstantTimeEquals("same", "same-but-longer"))
}

func TestTokenGenerator_NewOpaqueToken(t *testing.T) {
	gen := NewTokenGenerator()
	seen := make(map[string]struct{})

	for range 64 {
		token, err := gen.NewOpaqueToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.Len(t, raw, 32)

		_, dup := seen[token]
		assert.False(t, dup)
		seen[token] = struct{}{}
	}
}
