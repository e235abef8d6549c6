package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Decrypt reverses the AES-256-GCM encryption used to store the signer's
// private key outside the YAML config (cmd bootstrap reads ENC_PK/KEY
// from the environment and calls this once at startup). key is hashed
// with SHA-256 to derive a 32-byte AES key regardless of its length;
// ciphertext is base64-encoded "nonce || sealed" as produced by the
// accompanying encryption tooling.
func Decrypt(key []byte, ciphertextB64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("decrypt: decode base64: %w", err)
	}

	sum := sha256.Sum256(key)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return "", fmt.Errorf("decrypt: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("decrypt: new gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("decrypt: ciphertext shorter than nonce")
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]

	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: open: %w", err)
	}
	return string(plain), nil
}
