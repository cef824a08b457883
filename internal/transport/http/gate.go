package http

import (
	"net"
	"net/http"

	"github.com/cimillas/ordswap/internal/domain"
)

const challengeHeader = "X-Challenge-Token"

// AbuseGuard verifies mutating requests against the abuse gate: the
// challenge token travels in the X-Challenge-Token header and the rate
// limit keys on the caller's address. Reads pass through untouched.
func AbuseGuard(gate domain.AbuseGate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		remote := remoteHost(r)
		if !gate.AllowRequest(r.Context(), remote) {
			writeDomainError(w, domain.ErrRateLimited)
			return
		}
		if err := gate.VerifyToken(r.Context(), r.Header.Get(challengeHeader), remote); err != nil {
			writeDomainError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
