package hipaa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks values produced by Sealer.Seal.
const sealedPrefix = "enc:v1:"

// ErrNoKey is returned when a sealed value is read without a key.
var ErrNoKey = errors.New("value is sealed but no encryption key is configured")

// Sealer encrypts PHI payloads at rest with AES-256-GCM. Output is
// "enc:v1:" followed by base64 of nonce||ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer requires a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("sealer: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sealer: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sealer: create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext with a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("seal: generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, errors.New("open: value is not sealed")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("open: base64 decode: %w", err)
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, errors.New("open: ciphertext too short")
	}
	plaintext, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether v was produced by Seal.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, sealedPrefix)
}

// SealOptional seals with s, or returns plaintext unchanged when s is nil.
func SealOptional(s *Sealer, plaintext []byte) (string, error) {
	if s == nil {
		return string(plaintext), nil
	}
	return s.Seal(plaintext)
}

// OpenOptional opens v when it is sealed and returns it as-is otherwise.
func OpenOptional(s *Sealer, v string) ([]byte, error) {
	if !IsSealed(v) {
		return []byte(v), nil
	}
	if s == nil {
		return nil, ErrNoKey
	}
	return s.Open(v)
}
