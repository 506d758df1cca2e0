// Package crypto generates salts and salted PBKDF2 hashes, and serves them over HTTP.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Defaults used when no option overrides them.
const (
	DefaultIterations = 10000
	DefaultSaltSize   = 32
	KeySize           = 32
)

// Hasher derives PBKDF2-HMAC-SHA256 keys.
type Hasher struct {
	iterations int
	saltSize   int
	random     io.Reader
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithIterations sets the PBKDF2 iteration count.
func WithIterations(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.iterations = n
		}
	}
}

// WithSaltSize sets the salt length in bytes.
func WithSaltSize(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.saltSize = n
		}
	}
}

// WithRandom replaces crypto/rand as the salt source.
func WithRandom(r io.Reader) Option {
	return func(h *Hasher) {
		h.random = r
	}
}

// NewHasher creates a hasher.
func NewHasher(opts ...Option) *Hasher {
	h := &Hasher{
		iterations: DefaultIterations,
		saltSize:   DefaultSaltSize,
		random:     rand.Reader,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SaltBase64 returns a fresh random salt, base64 encoded.
func (h *Hasher) SaltBase64() (string, error) {
	salt := make([]byte, h.saltSize)
	if _, err := io.ReadFull(h.random, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// HashBase64 hashes text with a base64 salt produced by SaltBase64.
func (h *Hasher) HashBase64(text, salt string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	key := pbkdf2.Key([]byte(text), raw, h.iterations, KeySize, sha256.New)
	return base64.StdEncoding.EncodeToString(key), nil
}
