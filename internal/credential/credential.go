// Package credential seals API keys before they are written to the
// configuration table and opens them again when a provider is built.
package credential

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
	"runtime"
	"strings"
)

// SealedPrefix marks values as sealed in storage.
const SealedPrefix = "enc:v1:"

// SecretEnv, when set, replaces the machine-derived key. Needed when the
// data directory moves between hosts or containers.
const SecretEnv = "INTELART_SECRET"

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidFormat    = errors.New("invalid sealed format")
)

// Sealer encrypts and decrypts stored secrets with AES-256-GCM.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the key from INTELART_SECRET when present, otherwise
// from identifiers of the current machine and user.
func NewSealer() (*Sealer, error) {
	if pass := os.Getenv(SecretEnv); pass != "" {
		return NewSealerWithPassphrase(pass)
	}
	return newSealer(machineKey())
}

// NewSealerWithPassphrase uses an explicit passphrase.
func NewSealerWithPassphrase(pass string) (*Sealer, error) {
	if pass == "" {
		return nil, errors.New("passphrase is required")
	}
	sum := sha256.Sum256([]byte("intelart:" + pass))
	return newSealer(sum[:])
}

func newSealer(key []byte) (*Sealer, error) {
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

// Seal encrypts plaintext into a storable string. Empty stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged so
// keys written by hand keep working.
func (s *Sealer) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidFormat, err)
	}

	n := s.aead.NonceSize()
	if len(raw) < n {
		return "", ErrInvalidFormat
	}

	plaintext, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// Resolve reads key through get and opens it.
func (s *Sealer) Resolve(get func(key string) (string, error), key string) (string, error) {
	stored, err := get(key)
	if err != nil {
		return "", err
	}
	return s.Open(stored)
}

// IsSealed checks if a value is already sealed.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// IsSecretKey tells the config command which keys must be sealed.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.HasSuffix(k, "api_key") || strings.Contains(k, "secret") || strings.HasSuffix(k, "token")
}

// Mask shows only the ends of a secret.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func machineKey() []byte {
	hostname, _ := os.Hostname()
	home, _ := os.UserHomeDir()

	parts := []string{
		hostname,
		home,
		runtime.GOOS,
		runtime.GOARCH,
		"intelart-credential-v1",
		fmt.Sprintf("uid:%d", os.Getuid()),
		os.Getenv("USER"),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return sum[:]
}
