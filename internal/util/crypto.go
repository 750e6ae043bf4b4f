package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// RandomString returns an n-character URL-safe random string (keys, secrets).
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:n], nil
}

// fieldCipher builds the AES-256-GCM AEAD for key. Any key length works: the
// AES key is its SHA-256.
func fieldCipher(key string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptField seals plain and returns base64(nonce || ciphertext). Empty
// input or key is passed through, which is how audit trails are stored when
// no key is configured.
func EncryptField(key, plain string) (string, error) {
	if plain == "" || key == "" {
		return plain, nil
	}
	aead, err := fieldCipher(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(aead.Seal(nonce, nonce, []byte(plain), nil)), nil
}

// openField reverses EncryptField.
func openField(key, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	aead, err := fieldCipher(key)
	if err != nil {
		return "", err
	}
	ns := aead.NonceSize()
	if len(raw) < ns {
		return "", errors.New("sealed value too short")
	}
	plain, err := aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}

// DecryptField is openField for display: rows written before a key was set,
// or under another key, come back unchanged.
func DecryptField(key, sealed string) string {
	if sealed == "" || key == "" {
		return sealed
	}
	plain, err := openField(key, sealed)
	if err != nil {
		return sealed
	}
	return plain
}
