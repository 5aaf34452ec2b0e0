// Package pkce implements the Proof Key for Code Exchange (RFC 7636)
// verifier and challenge primitives used to bind an authorization request
// to its token exchange.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// MethodS256 is the SHA-256 based code challenge method.
	// It is the only method Lichess accepts and the only one this
	// package produces.
	MethodS256 = "S256"

	// MinVerifierLength and MaxVerifierLength bound code_verifier
	// length per RFC 7636 section 4.1.
	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// NewVerifier returns a fresh code verifier: the URL-safe, unpadded
// base64 encoding of 32 cryptographically secure random bytes. A failed
// entropy read panics inside oauth2.GenerateVerifier; there is no safe
// way to continue an authorization flow without entropy.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// S256Challenge derives the code challenge for a verifier: the URL-safe,
// unpadded base64 encoding of SHA-256(verifier). Deterministic for a
// given verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyS256 checks a code verifier against a previously issued S256
// challenge. The comparison is constant time to avoid leaking challenge
// bytes through timing.
func VerifyS256(challenge, verifier string) error {
	if verifier == "" {
		return fmt.Errorf("code_verifier is required")
	}
	if err := ValidateVerifier(verifier); err != nil {
		return err
	}

	computed := S256Challenge(verifier)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}
	return nil
}

// ValidateVerifier enforces the RFC 7636 length and character
// constraints on a code verifier. Rejecting out-of-alphabet input before
// hashing keeps control characters and oversized payloads out of the
// token exchange request.
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", MinVerifierLength)
	}
	if len(verifier) > MaxVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", MaxVerifierLength)
	}
	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}
	return nil
}
