package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the grace period applied when
	// deciding whether a stored token is already unusable. It absorbs
	// minor time differences between this service and the
	// authorization server (typical NTP drift).
	DefaultClockSkewGracePeriod = 5 * time.Second

	// DefaultRefreshMargin is how far before the recorded expiry an
	// access token is treated as expired by consumers. Refreshing
	// slightly early keeps a token handed to a caller valid for the
	// duration of the downstream request it is about to make.
	DefaultRefreshMargin = 30 * time.Second
)

// IsTokenExpired checks if a token is expired with the default clock
// skew grace period.
func IsTokenExpired(expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod checks if a token is expired with a
// custom clock skew grace period.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false // No expiration
	}

	return time.Now().After(expiresAt.Add(gracePeriod))
}

// NeedsRefresh reports whether a token within margin of its expiry at
// the given instant should be refreshed before use.
func NeedsRefresh(expiresAt time.Time, margin time.Duration, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}

	return now.Add(margin).After(expiresAt)
}
