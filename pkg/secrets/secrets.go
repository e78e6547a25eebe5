// Package secrets hashes passwords and generates random identifiers.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	dErrors "certhub/pkg/domain-errors"
)

// MinPasswordLength is the shortest password accepted on create or change.
const MinPasswordLength = 8

// Generate creates a cryptographically secure random secret.
// Returns a base64-encoded string suitable for tokens and one-time passwords.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash creates a bcrypt hash of the provided password.
func Hash(password string) (string, error) {
	if password == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "password is too long")
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks if a plaintext password matches a bcrypt hash.
func Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return fmt.Errorf("could not verify password: %w", err)
	}
	return nil
}

// decoyHash has the same cost as stored hashes so a comparison against it
// takes as long as a real one.
var decoyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("certhub-decoy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("secrets: decoy hash: %v", err))
	}
	return h
})

// VerifyDecoy spends the same bcrypt work as Verify without a real hash.
// Login calls it for unknown accounts so response time does not reveal
// which emails are registered.
func VerifyDecoy(password string) {
	_ = bcrypt.CompareHashAndPassword(decoyHash(), []byte(password))
}

// ValidatePassword enforces the password policy for new passwords.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > 72 {
		return dErrors.New(dErrors.CodeValidation, "password must be at most 72 bytes")
	}
	return nil
}

// verificationAlphabet omits the look-alike characters 0, O, 1 and I.
const verificationAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	verificationPrefix = "CH"
	verificationGroups = 3
	verificationGroup  = 4
)

// GenerateVerificationID returns an opaque public identifier such as
// CH-7K3M-QX9P-2B4T.
func GenerateVerificationID() (string, error) {
	buf := make([]byte, verificationGroups*verificationGroup)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate verification id: %w", err)
	}
	var b strings.Builder
	b.WriteString(verificationPrefix)
	for i, c := range buf {
		if i%verificationGroup == 0 {
			b.WriteByte('-')
		}
		// 256 is a multiple of 32, so the modulo is unbiased.
		b.WriteByte(verificationAlphabet[int(c)%len(verificationAlphabet)])
	}
	return b.String(), nil
}

// NormalizeVerificationID upper-cases and trims user input before lookup.
func NormalizeVerificationID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
