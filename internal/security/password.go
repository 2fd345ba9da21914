// Package security holds the one-way password hashing used for stored credentials.
package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashCost is fixed so every stored hash has the same work factor
const HashCost = bcrypt.DefaultCost

// MaxPasswordBytes is the longest input bcrypt accepts, in bytes not runes
const MaxPasswordBytes = 72

var (
	// ErrEmptyPassword is returned when hashing an empty plaintext
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordVerification marks a stored hash that cannot be parsed
	ErrPasswordVerification = errors.New("password verification failed")
	// ErrPasswordTooLong is returned for plaintexts over MaxPasswordBytes
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// HashPassword returns a salted bcrypt hash of plaintext
func HashPassword(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), HashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plaintext matches hash.
// A mismatch is (false, nil); a malformed or unknown hash is ErrPasswordVerification.
func VerifyPassword(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrPasswordVerification, err)
	}
}
