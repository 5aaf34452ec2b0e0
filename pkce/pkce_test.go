package pkce

import (
	"strings"
	"testing"
)

const urlSafeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func TestNewVerifierAlphabet(t *testing.T) {
	v := NewVerifier()

	// 32 random bytes encode to 43 unpadded base64url characters
	if len(v) != 43 {
		t.Errorf("NewVerifier() length = %d, want 43", len(v))
	}
	for _, ch := range v {
		if !strings.ContainsRune(urlSafeAlphabet, ch) {
			t.Errorf("NewVerifier() produced character %q outside the URL-safe base64 alphabet", ch)
		}
	}
	if strings.ContainsAny(v, "=+/") {
		t.Errorf("NewVerifier() = %q contains padding or standard-base64 characters", v)
	}
}

func TestNewVerifierUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		v := NewVerifier()
		if seen[v] {
			t.Fatalf("NewVerifier() returned duplicate value %q", v)
		}
		seen[v] = true
	}
}

func TestS256ChallengeDeterministic(t *testing.T) {
	v := NewVerifier()

	first := S256Challenge(v)
	for i := 0; i < 10; i++ {
		if got := S256Challenge(v); got != first {
			t.Fatalf("S256Challenge(%q) = %q, want stable %q", v, got, first)
		}
	}
}

func TestS256ChallengeKnownVector(t *testing.T) {
	// RFC 7636 appendix B test vector
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := S256Challenge(verifier); got != want {
		t.Errorf("S256Challenge() = %q, want %q", got, want)
	}
}

func TestVerifyS256(t *testing.T) {
	verifier := NewVerifier()
	challenge := S256Challenge(verifier)

	if err := VerifyS256(challenge, verifier); err != nil {
		t.Errorf("VerifyS256() with matching pair: %v", err)
	}

	if err := VerifyS256(challenge, NewVerifier()); err == nil {
		t.Error("VerifyS256() with wrong verifier should fail")
	}

	if err := VerifyS256(challenge, ""); err == nil {
		t.Error("VerifyS256() with empty verifier should fail")
	}
}

func TestValidateVerifier(t *testing.T) {
	tests := []struct {
		name     string
		verifier string
		wantErr  bool
	}{
		{"generated verifier", NewVerifier(), false},
		{"minimum length", strings.Repeat("a", 43), false},
		{"maximum length", strings.Repeat("a", 128), false},
		{"too short", strings.Repeat("a", 42), true},
		{"too long", strings.Repeat("a", 129), true},
		{"invalid character", strings.Repeat("a", 42) + "!", true},
		{"null byte", strings.Repeat("a", 42) + "\x00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVerifier(tt.verifier)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVerifier() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
