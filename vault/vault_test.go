package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNew_RejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"too short", "abcd"},
		{"too long", testKey + "00"},
		{"not hex", strings.Repeat("z", 64)},
		{"raw bytes length", strings.Repeat("a", 32)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.key)
			assert.Error(t, err)
		})
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	plaintext := "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	ciphertext, err := v.Encrypt(plaintext)
	require.NoError(t, err)

	parts := strings.Split(ciphertext, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 24) // 12-byte IV
	assert.Len(t, parts[1], 32) // 16-byte tag

	got, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	first, err := v.Encrypt("secret")
	require.NoError(t, err)
	second, err := v.Encrypt("secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)
	other, err := New(strings.Repeat("ff", 32))
	require.NoError(t, err)

	ciphertext, err := v.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDecrypt_MalformedInput(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	for _, input := range []string{
		"",
		"deadbeef",
		"aa:bb",
		"zz:zz:zz",
		"aabb:ccdd:eeff", // wrong IV length
	} {
		_, err := v.Decrypt(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestDecrypt_TamperedCiphertextFails(t *testing.T) {
	v, err := New(testKey)
	require.NoError(t, err)

	ciphertext, err := v.Encrypt("secret")
	require.NoError(t, err)

	parts := strings.Split(ciphertext, ":")
	body := []byte(parts[2])
	if body[0] == 'a' {
		body[0] = 'b'
	} else {
		body[0] = 'a'
	}
	tampered := parts[0] + ":" + parts[1] + ":" + string(body)

	_, err = v.Decrypt(tampered)
	assert.Error(t, err)
}
