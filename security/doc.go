// Package security provides supporting security features for the
// authentication service: audit logging with PII hashing, clock-skew
// aware expiry checks, per-identifier rate limiting and token
// encryption at rest.
package security
