package security

import (
	"log/slog"
	"testing"
	"time"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 20, nil)
	defer rl.Stop()

	if rl.rate != 10 {
		t.Errorf("rate = %d, want 10", rl.rate)
	}

	if rl.burst != 20 {
		t.Errorf("burst = %d, want 20", rl.burst)
	}

	if rl.logger == nil {
		t.Error("logger should not be nil")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(10, 5, slog.Default())
	defer rl.Stop()

	identifier := "203.0.113.7"

	// Requests up to burst should be allowed
	for i := 0; i < 5; i++ {
		if !rl.Allow(identifier) {
			t.Errorf("Allow() request %d should be allowed", i+1)
		}
	}

	if rl.Allow(identifier) {
		t.Error("Allow() should return false when rate limited")
	}
}

func TestRateLimiter_Allow_MultipleIdentifiers(t *testing.T) {
	rl := NewRateLimiter(10, 2, slog.Default())
	defer rl.Stop()

	id1 := "203.0.113.7"
	id2 := "203.0.113.8"

	for i := 0; i < 2; i++ {
		if !rl.Allow(id1) {
			t.Errorf("Allow(id1) request %d should be allowed", i+1)
		}
	}

	if rl.Allow(id1) {
		t.Error("Allow(id1) should return false when rate limited")
	}

	// A different identifier has its own bucket
	if !rl.Allow(id2) {
		t.Error("Allow(id2) should be allowed")
	}
}

func TestRateLimiter_Allow_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0, slog.Default())
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		if !rl.Allow("any") {
			t.Fatal("Allow() should always return true with a zero rate")
		}
	}
}

func TestRateLimiter_Allow_NilReceiver(t *testing.T) {
	var rl *RateLimiter
	if !rl.Allow("any") {
		t.Error("nil RateLimiter should allow everything")
	}
}

func TestRateLimiter_EvictOldest(t *testing.T) {
	rl := NewRateLimiter(10, 10, slog.Default())
	defer rl.Stop()

	rl.maxEntries = 3

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("c")

	// Make "a" the stalest entry
	rl.mu.Lock()
	rl.limiters["a"].lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.Allow("d")

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.limiters) != 3 {
		t.Errorf("entries = %d, want 3", len(rl.limiters))
	}
	if _, exists := rl.limiters["a"]; exists {
		t.Error("stalest entry should have been evicted")
	}
	if _, exists := rl.limiters["d"]; !exists {
		t.Error("new entry should be present after eviction")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, slog.Default())
	defer rl.Stop()

	rl.Allow("fresh")
	rl.Allow("idle")

	rl.mu.Lock()
	rl.limiters["idle"].lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.Cleanup(30 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if _, exists := rl.limiters["idle"]; exists {
		t.Error("idle entry should have been removed")
	}
	if _, exists := rl.limiters["fresh"]; !exists {
		t.Error("fresh entry should have been kept")
	}
}

func TestRateLimiter_Stop_Idempotent(t *testing.T) {
	rl := NewRateLimiter(10, 10, slog.Default())
	rl.Stop()
	rl.Stop() // Must not panic
}
