package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()
	key := []byte(strings.Repeat("k", 32))

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		ct, err := Encrypt([]byte("ya29.secret-token"), key)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(ct, "enc:"))
		assert.NotContains(t, ct, "secret-token")

		pt, err := Decrypt(ct, key)
		require.NoError(t, err)
		assert.Equal(t, "ya29.secret-token", pt)
	})

	t.Run("wrong key fails to decrypt", func(t *testing.T) {
		t.Parallel()
		ct, err := Encrypt([]byte("token"), key)
		require.NoError(t, err)

		_, err = Decrypt(ct, []byte(strings.Repeat("x", 32)))
		assert.Error(t, err)
	})

	t.Run("unprefixed value passes through", func(t *testing.T) {
		t.Parallel()
		pt, err := Decrypt("legacy-plaintext-token", key)
		require.NoError(t, err)
		assert.Equal(t, "legacy-plaintext-token", pt)
	})

	t.Run("rejects short keys", func(t *testing.T) {
		t.Parallel()
		_, err := Encrypt([]byte("token"), []byte("short"))
		assert.Error(t, err)
		_, err = Decrypt("enc:abc", []byte("short"))
		assert.Error(t, err)
	})

	t.Run("nonce makes ciphertexts distinct", func(t *testing.T) {
		t.Parallel()
		a, err := Encrypt([]byte("token"), key)
		require.NoError(t, err)
		b, err := Encrypt([]byte("token"), key)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}
