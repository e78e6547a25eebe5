// Package email normalizes and validates email addresses.
package email

import (
	"net/mail"
	"strings"
	"unicode"

	dErrors "certhub/pkg/domain-errors"
)

// MaxLength is the longest address accepted (RFC 5321 path limit).
const MaxLength = 254

// Normalize trims and lower-cases an address. Stored addresses are always normalized.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Valid reports whether addr is a bare address without a display name.
func Valid(addr string) bool {
	if addr == "" || len(addr) > MaxLength {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return false
	}
	at := strings.LastIndexByte(addr, '@')
	return at > 0 && strings.Contains(addr[at+1:], ".")
}

// Parse normalizes addr and rejects it when invalid.
func Parse(addr string) (string, error) {
	n := Normalize(addr)
	if !Valid(n) {
		return "", dErrors.New(dErrors.CodeValidation, "invalid email address")
	}
	return n, nil
}

// DeriveName builds a display name from the local part, e.g.
// "jane.doe@example.com" becomes "Jane Doe".
func DeriveName(addr string) string {
	localPart, _, _ := strings.Cut(addr, "@")

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "User"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
