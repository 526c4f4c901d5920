package hash

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

type Hasher interface {
	Algorithm() Algorithm
	Sum(data []byte) string
	SumReader(reader io.Reader) (string, error)
	Verify(data []byte, expected string) bool
}

type contentHasher struct {
	algorithm Algorithm
	newHash   func() hash.Hash
}

func New(algorithm string) (Hasher, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(algorithm))) {
	case SHA256, "":
		return &contentHasher{algorithm: SHA256, newHash: sha256.New}, nil
	case SHA512:
		return &contentHasher{algorithm: SHA512, newHash: sha512.New}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

func (h *contentHasher) Algorithm() Algorithm {
	return h.algorithm
}

func (h *contentHasher) Sum(data []byte) string {
	hasher := h.newHash()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

func (h *contentHasher) SumReader(reader io.Reader) (string, error) {
	hasher := h.newHash()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to read data: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify compares in constant time; the expected digest is case-insensitive.
func (h *contentHasher) Verify(data []byte, expected string) bool {
	actual := h.Sum(data)
	expected = strings.ToLower(strings.TrimSpace(expected))
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}
