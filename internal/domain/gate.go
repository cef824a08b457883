package domain

import "context"

// AbuseGate is the anti-abuse collaborator: challenge-token verification
// plus rate limiting. The service only consumes this interface; the
// implementation (CAPTCHA provider, limiter) lives outside this module.
type AbuseGate interface {
	// VerifyToken checks a challenge token for the given remote address.
	// A failure maps to ErrChallengeFailed.
	VerifyToken(ctx context.Context, token, remoteAddr string) error

	// AllowRequest reports whether the caller identified by key may
	// proceed. A false result maps to ErrRateLimited.
	AllowRequest(ctx context.Context, key string) bool
}

// OpenGate is an AbuseGate that admits everything. Used when no gate is
// configured.
type OpenGate struct{}

func (OpenGate) VerifyToken(ctx context.Context, token, remoteAddr string) error { return nil }

func (OpenGate) AllowRequest(ctx context.Context, key string) bool { return true }
