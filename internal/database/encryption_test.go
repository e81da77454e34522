package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-very-long-test-secret-key-for-encryption-testing"

func TestEncryptor_EncryptDecrypt(t *testing.T) {
	encryptor, err := NewEncryptor(testSecret, true)
	require.NoError(t, err)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{name: "glide token", plaintext: "2f4c1d9e-aaaa-bbbb-cccc-1234567890ab"},
		{name: "empty string", plaintext: ""},
		{name: "special characters", plaintext: "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ciphertext, err := encryptor.Encrypt(tc.plaintext)
			require.NoError(t, err)

			if tc.plaintext == "" {
				assert.Equal(t, "", ciphertext)
				return
			}

			assert.True(t, strings.HasPrefix(ciphertext, encryptedPrefix))
			assert.NotContains(t, ciphertext, tc.plaintext)

			decrypted, err := encryptor.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, decrypted)
		})
	}
}

func TestEncryptor_EncryptionUniqueness(t *testing.T) {
	encryptor, err := NewEncryptor(testSecret, true)
	require.NoError(t, err)

	c1, err := encryptor.Encrypt("token")
	require.NoError(t, err)
	c2, err := encryptor.Encrypt("token")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2, "random nonces must yield different ciphertexts")
}

func TestEncryptor_Disabled(t *testing.T) {
	encryptor, err := NewEncryptor("", false)
	require.NoError(t, err)
	assert.False(t, encryptor.Enabled())

	out, err := encryptor.Encrypt("plain-token")
	require.NoError(t, err)
	assert.Equal(t, "plain-token", out)

	_, err = encryptor.Decrypt(encryptedPrefix + "AAAA")
	assert.Error(t, err)
}

func TestEncryptor_ShortSecret(t *testing.T) {
	_, err := NewEncryptor("short", true)
	assert.Error(t, err)
}

func TestEncryptor_LegacyPlaintextPassesThrough(t *testing.T) {
	encryptor, err := NewEncryptor(testSecret, true)
	require.NoError(t, err)

	out, err := encryptor.Decrypt("stored-before-encryption")
	require.NoError(t, err)
	assert.Equal(t, "stored-before-encryption", out)
}

func TestEncryptor_TamperedCiphertext(t *testing.T) {
	encryptor, err := NewEncryptor(testSecret, true)
	require.NoError(t, err)

	_, err = encryptor.Decrypt(encryptedPrefix + "not-base64!!")
	assert.Error(t, err)

	_, err = encryptor.Decrypt(encryptedPrefix + "AAAA")
	assert.Error(t, err)
}
