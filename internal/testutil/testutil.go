// Package testutil provides testing utilities and helpers for the
// lichessauth library.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/blunderboard/lichessauth/storage"
)

// MockTime provides a controllable time source for deterministic testing.
type MockTime struct {
	now time.Time
}

// NewMockTime creates a new mock time provider.
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time.
func (m *MockTime) Now() time.Time {
	return m.now
}

// Advance moves the mock time forward by the given duration.
func (m *MockTime) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value.
func (m *MockTime) Set(t time.Time) {
	m.now = t
}

// GenerateTestToken creates a test OAuth2 token valid for one hour.
func GenerateTestToken() *oauth2.Token {
	return GenerateTestTokenWithExpiry(time.Now().Add(time.Hour))
}

// GenerateTestTokenWithExpiry creates a test OAuth2 token with a
// specific expiry.
func GenerateTestTokenWithExpiry(expiry time.Time) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  GenerateRandomString(32),
		TokenType:    "Bearer",
		RefreshToken: GenerateRandomString(32),
		Expiry:       expiry,
	}
}

// GenerateTestUser creates a test Lichess user identity.
func GenerateTestUser() *storage.User {
	return &storage.User{
		ID:       "testuser",
		Username: "TestUser",
	}
}

// GenerateTestSession creates a test session for the given user.
func GenerateTestSession(user *storage.User) *storage.Session {
	if user == nil {
		user = GenerateTestUser()
	}
	return &storage.Session{
		Token:     GenerateTestToken(),
		User:      *user,
		CreatedAt: time.Now(),
	}
}

// GenerateRandomString generates a random URL-safe string of n bytes of
// entropy.
func GenerateRandomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("testutil: rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
