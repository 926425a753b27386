package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength    = 16
	argonTime     = 1
	argonMemory   = 64 * 1024
	argonThreads  = 4
	argonKeyBytes = 32
)

// Credential holds a salted Argon2id password hash. The plain password is
// only ever passed in; nothing reads it back out.
type Credential struct {
	hash string
	salt string
}

// SetPassword replaces the stored hash with one derived from password and
// a fresh random salt.
func (c *Credential) SetPassword(password string) error {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyBytes)

	c.hash = base64.StdEncoding.EncodeToString(hash)
	c.salt = base64.StdEncoding.EncodeToString(salt)
	return nil
}

// Verify reports whether password matches the stored hash.
func (c Credential) Verify(password string) (bool, error) {
	salt, err := base64.StdEncoding.DecodeString(c.salt)
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}

	hash, err := base64.StdEncoding.DecodeString(c.hash)
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	candidate := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyBytes)

	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}
