package domain

import "time"

// Reservation is a time-bounded exclusive hold of one inscription for one
// buyer. At most one row exists per inscription; an expired row is treated
// as free the next time a write is attempted against it (lazy expiry).
type Reservation struct {
	InscriptionID  string
	CollectionSlug string
	BuyerAddress   string
	ExpiresAt      time.Time
}

// Active reports whether the reservation still holds the inscription at now.
func (r Reservation) Active(now time.Time) bool {
	return r.ExpiresAt.After(now)
}
