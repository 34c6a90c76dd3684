// Package vault provides symmetric encryption of private key material at
// rest. Ciphertexts are AES-256-GCM with a fresh random 96-bit IV per call
// and a 128-bit authentication tag, serialized as iv:authTag:ciphertext in
// hex.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agentpay/payflow/types"
)

const (
	keyHexLen = 64 // 256-bit key, hex-encoded
	ivLen     = 12 // GCM standard nonce size
	tagLen    = 16
)

// Vault encrypts and decrypts secrets with a fixed 256-bit key.
type Vault struct {
	key []byte
}

// New builds a Vault from a 64-hex-character key. A missing or malformed
// key is a startup-time fatal condition for any caller that intends to
// encrypt.
func New(hexKey string) (*Vault, error) {
	if len(hexKey) != keyHexLen {
		return nil, types.NewEngineError(types.ErrConfigError,
			fmt.Sprintf("vault key must be %d hex characters, got %d", keyHexLen, len(hexKey)))
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, types.NewEngineError(types.ErrConfigError,
			fmt.Sprintf("vault key is not valid hex: %v", err))
	}
	return &Vault{key: key}, nil
}

// Encrypt seals the plaintext. Encryption is non-deterministic: the IV is
// random per call, so identical plaintexts produce distinct ciphertexts.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", types.NewEngineError(types.ErrVaultError, fmt.Sprintf("cipher init failed: %v", err))
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", types.NewEngineError(types.ErrVaultError, fmt.Sprintf("gcm init failed: %v", err))
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", types.NewEngineError(types.ErrVaultError, fmt.Sprintf("iv generation failed: %v", err))
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)

	// Seal appends the auth tag to the ciphertext; split for the wire form.
	ciphertext := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt opens an iv:authTag:ciphertext triple. A wrong key or tampered
// ciphertext fails authentication loudly; garbage plaintext is never
// returned.
func (v *Vault) Decrypt(sealed string) (string, error) {
	parts := strings.Split(sealed, ":")
	if len(parts) != 3 {
		return "", types.NewEngineError(types.ErrVaultError,
			"malformed encrypted secret, expected iv:authTag:ciphertext")
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivLen {
		return "", types.NewEngineError(types.ErrVaultError, "malformed IV in encrypted secret")
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLen {
		return "", types.NewEngineError(types.ErrVaultError, "malformed auth tag in encrypted secret")
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", types.NewEngineError(types.ErrVaultError, "malformed ciphertext in encrypted secret")
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", types.NewEngineError(types.ErrVaultError, fmt.Sprintf("cipher init failed: %v", err))
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", types.NewEngineError(types.ErrVaultError, fmt.Sprintf("gcm init failed: %v", err))
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", types.NewEngineError(types.ErrVaultError, "decryption failed: authentication error")
	}

	return string(plaintext), nil
}
