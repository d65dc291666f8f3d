package vault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	encoded, err := GenerateKey(32)
	require.NoError(t, err)

	v, err := NewFromBase64(encoded)
	require.NoError(t, err)
	return v
}

func TestVault_EncryptDecrypt(t *testing.T) {
	t.Run("round trips a secret", func(t *testing.T) {
		v := newTestVault(t)

		ciphertext, err := v.Encrypt("sk-live-abc123def456")
		require.NoError(t, err)
		assert.NotEqual(t, "sk-live-abc123def456", ciphertext)

		plaintext, err := v.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "sk-live-abc123def456", plaintext)
	})

	t.Run("nonces differ between encryptions", func(t *testing.T) {
		v := newTestVault(t)

		first, err := v.Encrypt("same-secret")
		require.NoError(t, err)
		second, err := v.Encrypt("same-secret")
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("rejects tampered ciphertext", func(t *testing.T) {
		v := newTestVault(t)

		ciphertext, err := v.Encrypt("secret")
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(ciphertext)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xFF
		tampered := base64.StdEncoding.EncodeToString(raw)

		_, err = v.Decrypt(tampered)
		assert.Error(t, err)
	})

	t.Run("rejects ciphertext from a different key", func(t *testing.T) {
		v1 := newTestVault(t)
		v2 := newTestVault(t)

		ciphertext, err := v1.Encrypt("secret")
		require.NoError(t, err)

		_, err = v2.Decrypt(ciphertext)
		assert.Error(t, err)
	})
}

func TestNew_KeySizes(t *testing.T) {
	_, err := New(make([]byte, 15))
	assert.Error(t, err)

	for _, size := range []int{16, 24, 32} {
		_, err := New(make([]byte, size))
		assert.NoError(t, err)
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "sk-l****3456", Mask("sk-live-key-3456"))
	assert.Equal(t, "********", Mask("short"))
	assert.Equal(t, "********", Mask(""))
	assert.NotContains(t, Mask("sk-live-key-3456"), "ive-key")
}
