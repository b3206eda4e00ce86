// Package pkce generates PKCE (RFC 7636) code verifiers and derives their
// S256 challenges.
package pkce

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/oauth2"
)

const (
	MinLength     = 43
	MaxLength     = 128
	DefaultLength = MaxLength
)

// unreserved characters allowed in a verifier (RFC 7636 §4.1)
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

var (
	ErrInvalidLength    = fmt.Errorf("code verifier length must be between %d and %d", MinLength, MaxLength)
	ErrInvalidCharacter = errors.New("code verifier contains a character outside [A-Za-z0-9-._~]")
)

// NewVerifier returns a fresh verifier of DefaultLength characters.
func NewVerifier() (string, error) {
	return NewVerifierLength(DefaultLength)
}

// NewVerifierLength returns a fresh verifier of n characters.
func NewVerifierLength(n int) (string, error) {
	if n < MinLength || n > MaxLength {
		return "", ErrInvalidLength
	}

	max := big.NewInt(int64(len(alphabet)))
	ret := make([]byte, n)
	for i := range ret {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code verifier: %w", err)
		}
		ret[i] = alphabet[num.Int64()]
	}
	return string(ret), nil
}

// Challenge derives the S256 challenge: BASE64URL-NOPAD(SHA256(verifier)).
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// Validate checks the verifier's length and alphabet.
func Validate(verifier string) error {
	if len(verifier) < MinLength || len(verifier) > MaxLength {
		return ErrInvalidLength
	}
	for i := 0; i < len(verifier); i++ {
		if !isUnreserved(verifier[i]) {
			return ErrInvalidCharacter
		}
	}
	return nil
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
