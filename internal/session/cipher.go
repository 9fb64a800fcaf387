package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedCiphertext is returned when a stored value is not "<hex nonce>:<hex ciphertext>"
var ErrMalformedCiphertext = errors.New("session: malformed ciphertext")

// Cipher encrypts credentials with AES-256-GCM. The key is SHA-256 of the operator secret
// and every call to Encrypt draws a fresh nonce, stored in front of the ciphertext.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("session: empty encryption secret")
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create block cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	nonceHex, sealedHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", ErrMalformedCiphertext
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plaintext), nil
}
