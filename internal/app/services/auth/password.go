package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// pepperBytes is prepended to every hash; its hex form occupies the first
// ten characters of the stored value.
const pepperBytes = 5

const keyLength = 32

// PasswordHasher derives password hashes with pbkdf2-sha512 over a
// per-password random pepper and a process-wide configured salt.
type PasswordHasher struct {
	salt       []byte
	iterations int
}

// NewPasswordHasher builds a hasher from the configured salt and iteration
// count.
func NewPasswordHasher(salt string, iterations int) *PasswordHasher {
	if iterations <= 0 {
		iterations = 50000
	}
	return &PasswordHasher{salt: []byte(salt), iterations: iterations}
}

// Hash returns the pepper-prefixed derived key in hex. The stored value is
// pepper (10 hex chars) followed by the 32-byte key (64 hex chars).
func (h *PasswordHasher) Hash(password string) (string, error) {
	raw := make([]byte, pepperBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate pepper: %w", err)
	}
	pepper := hex.EncodeToString(raw)

	key := pbkdf2.Key([]byte(pepper+password), h.salt, h.iterations, keyLength, sha512.New)
	return pepper + hex.EncodeToString(key), nil
}

// Confirm reports whether the candidate password matches the stored hash.
func (h *PasswordHasher) Confirm(password, hash string) bool {
	if len(hash) <= pepperBytes*2 {
		return false
	}
	pepper := hash[:pepperBytes*2]
	original := hash[pepperBytes*2:]

	key := pbkdf2.Key([]byte(pepper+password), h.salt, h.iterations, keyLength, sha512.New)
	candidate := hex.EncodeToString(key)

	return subtle.ConstantTimeCompare([]byte(original), []byte(candidate)) == 1
}
