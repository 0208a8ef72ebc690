package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T, master string) []byte {
	t.Helper()
	key, err := DeriveKey(master)
	require.NoError(t, err)
	return key
}

// =============================================================================
// DeriveKey Tests
// =============================================================================

func TestDeriveKey(t *testing.T) {
	assert.Len(t, mustKey(t, "my-master-key"), 32)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	assert.Equal(t, mustKey(t, "same"), mustKey(t, "same"))
}

func TestDeriveKey_DifferentInput(t *testing.T) {
	assert.NotEqual(t, mustKey(t, "one"), mustKey(t, "two"))
}

// =============================================================================
// Encrypt/Decrypt Tests
// =============================================================================

func TestEncrypt_Decrypt_Roundtrip(t *testing.T) {
	plaintext := []byte("mailgun-api-key")
	key := mustKey(t, "test-encryption-key")

	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_DifferentNonces(t *testing.T) {
	key := mustKey(t, "test-key")

	c1, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)
	c2, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func TestEncrypt_KeyTooShort(t *testing.T) {
	_, err := Encrypt([]byte("test"), []byte("too-short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)

	_, err = Decrypt([]byte("some-ciphertext-data-that-is-long-enough"), []byte("too-short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

func TestDecrypt_WrongKey(t *testing.T) {
	ciphertext, err := Encrypt([]byte("secret"), mustKey(t, "correct"))
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, mustKey(t, "wrong"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_CiphertextTooShort(t *testing.T) {
	_, err := Decrypt([]byte("short"), mustKey(t, "test-key"))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecrypt_CorruptedCiphertext(t *testing.T) {
	key := mustKey(t, "test-key")
	ciphertext, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = Decrypt(ciphertext, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

// =============================================================================
// Sealed Value Tests
// =============================================================================

func TestSeal_Open_Roundtrip(t *testing.T) {
	sealed, err := Seal("sk-live-123", "master")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.True(t, strings.HasPrefix(sealed, "sealed:"))
	assert.NotContains(t, sealed, "sk-live-123")

	opened, err := Open(sealed, "master")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", opened)
}

func TestOpen_PlainValuePassesThrough(t *testing.T) {
	v, err := Open("plain-value", "")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", v)
}

func TestOpen_NoMasterKey(t *testing.T) {
	sealed, err := Seal("x", "master")
	require.NoError(t, err)

	_, err = Open(sealed, "")
	assert.ErrorIs(t, err, ErrNoMasterKey)

	_, err = Seal("x", "")
	assert.ErrorIs(t, err, ErrNoMasterKey)
}

func TestOpen_WrongMasterKey(t *testing.T) {
	sealed, err := Seal("x", "master")
	require.NoError(t, err)

	_, err = Open(sealed, "other")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpen_InvalidBase64(t *testing.T) {
	_, err := Open("sealed:not-valid-base64!@#", "master")
	assert.Error(t, err)
}

func TestSeal_EmptyPlaintext(t *testing.T) {
	sealed, err := Seal("", "master")
	require.NoError(t, err)

	opened, err := Open(sealed, "master")
	require.NoError(t, err)
	assert.Empty(t, opened)
}
