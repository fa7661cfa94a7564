// Package crypto seals database passwords stored in the databases file.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// SealedPrefix marks a sealed value in configuration files.
const SealedPrefix = "enc:"

// Sealer encrypts and decrypts short secrets with AES-256-GCM. The output is
// SealedPrefix followed by hex(nonce || ciphertext).
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer creates a Sealer from a hex-encoded 32-byte key.
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// IsSealed reports whether v carries the sealed prefix.
func IsSealed(v string) bool { return strings.HasPrefix(v, SealedPrefix) }

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return SealedPrefix + hex.EncodeToString(s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Open decrypts a sealed value. Values without the prefix are returned as is,
// so plaintext passwords keep working.
func (s *Sealer) Open(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(v, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	n := s.gcm.NonceSize()
	if len(raw) < n {
		return "", fmt.Errorf("sealed value too short")
	}
	plaintext, err := s.gcm.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a new random hex-encoded key.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
