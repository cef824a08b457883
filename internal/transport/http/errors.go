package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cimillas/ordswap/internal/domain"
	"github.com/cimillas/ordswap/internal/observability"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidBuyerAddress  = "invalid_buyer_address"
	codeInvalidPSBT          = "invalid_psbt"
	codeNotLaunchpad         = "not_launchpad"
	codeLaunchpadOnlyMint    = "launchpad_only_mint"
	codeSoldOut              = "sold_out"
	codeNoReservation        = "no_reservation"
	codeReservationMismatch  = "reservation_mismatch"
	codeBuyerMismatch        = "buyer_mismatch"
	codeAlreadySelling       = "already_selling"
	codeNotEligible          = "not_eligible"
	codeFeeTooLow            = "fee_too_low"
	codeFeeRateUnavailable   = "fee_rate_unavailable"
	codeMempoolReject        = "mempool_reject"
	codeChallengeFailed      = "challenge_failed"
	codeRateLimited          = "rate_limited"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: observability.SanitizeMessage(msg),
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps a service error to its HTTP status and stable
// error code. Unknown errors become an opaque 500 so internal detail
// never reaches the client.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, codeInternalError
	msg := err.Error()

	switch {
	case errors.Is(err, domain.ErrCollectionNotFound),
		errors.Is(err, domain.ErrInscriptionNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrNotLaunchpad):
		status, code = http.StatusBadRequest, codeNotLaunchpad
	case errors.Is(err, domain.ErrLaunchpadOnlyMint):
		status, code = http.StatusBadRequest, codeLaunchpadOnlyMint
	case errors.Is(err, domain.ErrInvalidBuyerAddress):
		status, code = http.StatusBadRequest, codeInvalidBuyerAddress
	case errors.Is(err, domain.ErrInvalidPSBT):
		status, code = http.StatusBadRequest, codeInvalidPSBT
	case errors.Is(err, domain.ErrSoldOut):
		status, code = http.StatusConflict, codeSoldOut
	case errors.Is(err, domain.ErrNoReservation):
		status, code = http.StatusBadRequest, codeNoReservation
	case errors.Is(err, domain.ErrReservationMismatch):
		status, code = http.StatusForbidden, codeReservationMismatch
	case errors.Is(err, domain.ErrBuyerMismatch):
		status, code = http.StatusForbidden, codeBuyerMismatch
	case errors.Is(err, domain.ErrAlreadySelling):
		status, code = http.StatusConflict, codeAlreadySelling
	case errors.Is(err, domain.ErrNotEligible):
		status, code = http.StatusBadRequest, codeNotEligible
	case errors.Is(err, domain.ErrFeeTooLow):
		status, code = http.StatusBadRequest, codeFeeTooLow
	case errors.Is(err, domain.ErrFeeRateUnavailable):
		status, code = http.StatusServiceUnavailable, codeFeeRateUnavailable
	case errors.Is(err, domain.ErrMempoolReject):
		status, code = http.StatusBadRequest, codeMempoolReject
	case errors.Is(err, domain.ErrChallengeFailed):
		status, code = http.StatusForbidden, codeChallengeFailed
	case errors.Is(err, domain.ErrRateLimited):
		status, code = http.StatusTooManyRequests, codeRateLimited
	default:
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}
