package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the work factor the platform has always used. Raising it
// invalidates no stored hashes; bcrypt encodes the cost in the hash itself.
const bcryptCost = 12

// HashPassword hashes a plaintext password using bcrypt with a fresh salt.
// The same input produces a different hash on every call.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash. Malformed
// or empty hashes verify as false; this never returns an error to the caller.
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
