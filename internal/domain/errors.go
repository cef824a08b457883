package domain

import "errors"

var (
	ErrCollectionNotFound   = errors.New("collection not found")
	ErrNotLaunchpad         = errors.New("collection is not a launchpad")
	ErrLaunchpadOnlyMint    = errors.New("launchpad mints must use the mint endpoint")
	ErrInvalidBuyerAddress  = errors.New("invalid buyer address")
	ErrInvalidPSBT          = errors.New("invalid signed psbt")
	ErrInscriptionNotFound  = errors.New("inscription not found")
	ErrNotEligible          = errors.New("transaction is not eligible for sale")
	ErrSoldOut              = errors.New("no inscriptions available")
	ErrNoReservation        = errors.New("no reservation for this inscription")
	ErrReservationMismatch  = errors.New("reservation does not match buyer")
	ErrBuyerMismatch        = errors.New("buyer address mismatch")
	ErrAlreadySelling       = errors.New("inscription is already being sold")
	ErrMempoolReject        = errors.New("transaction rejected by mempool")
	ErrFeeTooLow            = errors.New("fee rate too low, please prepare again")
	ErrFeeRateUnavailable   = errors.New("unable to determine effective fee rate")
	ErrChallengeFailed      = errors.New("challenge verification failed")
	ErrRateLimited          = errors.New("too many requests")
	ErrOrderNotFound        = errors.New("order not found")
)
