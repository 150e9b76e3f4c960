package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "v1:"

// ErrInvalidSealedValue signals a stored secret that cannot be opened with the configured key.
var ErrInvalidSealedValue = errors.New("invalid sealed value")

// Sealer encrypts merchant secrets at rest with XChaCha20-Poly1305.
// The merchant id is bound as associated data so sealed values cannot be swapped between accounts.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer from a base64 encoded 32 byte key.
func NewSealer(encodedKey string) (*Sealer, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedKey))
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credential key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext, returning a printable token safe to store in a text column.
func (s *Sealer) Seal(plaintext, merchantID string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(merchantID))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. The merchant id must match the one used when sealing.
func (s *Sealer) Open(token, merchantID string) (string, error) {
	if !strings.HasPrefix(token, sealedPrefix) {
		return "", ErrInvalidSealedValue
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, sealedPrefix))
	if err != nil {
		return "", ErrInvalidSealedValue
	}
	if len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrInvalidSealedValue
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(merchantID))
	if err != nil {
		return "", ErrInvalidSealedValue
	}
	return string(plain), nil
}

// MaskMerchantID keeps the first and last two characters visible.
func MaskMerchantID(merchantID string) string {
	runes := []rune(merchantID)
	n := len(runes)
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
}
