package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrUnreadable is returned for sealed values that fail to decode or authenticate.
var ErrUnreadable = errors.New("sealed value unreadable")

// TokenCipher seals provider refresh tokens at rest with AES-GCM and a random nonce
// per message. Sealed format: base64(nonce || ciphertext).
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher takes a 16, 24 or 32 byte key.
func NewTokenCipher(key string) (*TokenCipher, error) {
	k := []byte(key)
	n := len(k)
	if n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &TokenCipher{gcm: gcm}, nil
}

func (c *TokenCipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (c *TokenCipher) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", ErrUnreadable)
	}
	ns := c.gcm.NonceSize()
	if len(data) < ns+c.gcm.Overhead() {
		return "", fmt.Errorf("ciphertext too short: %w", ErrUnreadable)
	}
	pt, err := c.gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", ErrUnreadable)
	}
	return string(pt), nil
}
