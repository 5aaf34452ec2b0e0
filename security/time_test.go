package security

import (
	"testing"
	"time"
)

func TestIsTokenExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "zero time never expires", expiresAt: time.Time{}, want: false},
		{name: "far future", expiresAt: time.Now().Add(time.Hour), want: false},
		{name: "long past", expiresAt: time.Now().Add(-time.Hour), want: true},
		{name: "within grace period", expiresAt: time.Now().Add(-2 * time.Second), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTokenExpired(tt.expiresAt); got != tt.want {
				t.Errorf("IsTokenExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTokenExpiredWithGracePeriod(t *testing.T) {
	expiresAt := time.Now().Add(-10 * time.Second)

	if IsTokenExpiredWithGracePeriod(expiresAt, time.Minute) {
		t.Error("token inside a generous grace period should not be expired")
	}
	if !IsTokenExpiredWithGracePeriod(expiresAt, time.Second) {
		t.Error("token outside the grace period should be expired")
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		margin    time.Duration
		want      bool
	}{
		{name: "zero expiry never refreshes", expiresAt: time.Time{}, margin: DefaultRefreshMargin, want: false},
		{name: "well before expiry", expiresAt: now.Add(time.Hour), margin: DefaultRefreshMargin, want: false},
		{name: "inside refresh margin", expiresAt: now.Add(10 * time.Second), margin: DefaultRefreshMargin, want: true},
		{name: "already expired", expiresAt: now.Add(-time.Minute), margin: DefaultRefreshMargin, want: true},
		{name: "exactly at margin boundary", expiresAt: now.Add(DefaultRefreshMargin), margin: DefaultRefreshMargin, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsRefresh(tt.expiresAt, tt.margin, now); got != tt.want {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.want)
			}
		})
	}
}
