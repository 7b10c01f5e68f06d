// Package crypto seals secrets kept in the ppesync config file, such as the
// REST backend API key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidCiphertext is returned when a sealed value cannot be opened.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// sealedPrefix marks values produced by Seal so config files can tell them
// apart from plaintext.
const sealedPrefix = "v1:"

const saltFileName = ".salt"

// Sealer encrypts and decrypts config secrets with AES-256-GCM.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer whose key is derived from the hostname and a
// random salt stored in configDir. Values sealed on one machine cannot be
// opened on another.
func NewSealer(configDir string) (*Sealer, error) {
	salt, err := loadOrCreateSalt(filepath.Join(configDir, saltFileName))
	if err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	key := sha256.Sum256(append([]byte(hostname+":"), salt...))
	return NewSealerWithKey(key[:])
}

// NewSealerWithKey creates a Sealer from a 32-byte key.
func NewSealerWithKey(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, errors.New("key must be 32 bytes for AES-256")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts secret. An empty secret seals to "".
func (s *Sealer) Seal(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(secret), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. An empty value opens to "".
func (s *Sealer) Open(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if !IsSealed(value) {
		return "", ErrInvalidCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	n := s.aead.NonceSize()
	if len(data) < n {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries the Seal prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == 32 {
		return salt, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	salt = make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to write salt file: %w", err)
	}
	return salt, nil
}
