// Package app holds the application services behind the HTTP transport.
// ReserveService is the allocation side of the store: it hands out
// short-lived reservations on launchpad inscriptions and forwards
// reserved mints to the swap signer.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/cimillas/ordswap/internal/clock"
	"github.com/cimillas/ordswap/internal/domain"
	"github.com/cimillas/ordswap/internal/observability"
	"github.com/cimillas/ordswap/internal/policy"
	"github.com/cimillas/ordswap/internal/serial"
	"github.com/cimillas/ordswap/internal/signer"
)

const (
	defaultReservationTTL = 30 * time.Second

	// defaultHistoryWindow is how far back recent reservations are
	// consulted when picking a candidate. Assets reserved inside the
	// window, even when expired, are deprioritized so churning buyers
	// spread across the pool instead of fighting over one asset.
	defaultHistoryWindow = 5 * time.Minute

	// defaultEligibleCacheTTL bounds how stale the eligible-asset list
	// may be. The list only shrinks as sales complete, so a short TTL
	// trades a few spurious candidates for far fewer index calls.
	defaultEligibleCacheTTL = 2 * time.Second

	// reserveAttempts bounds the pick-and-write loop. Losing the
	// conditional write more than a couple of times in a row means the
	// pool is effectively contended down to nothing.
	reserveAttempts = 4
)

// ReservationRepository is the slice of the reservation store the
// service consumes.
type ReservationRepository interface {
	FindActiveByBuyer(ctx context.Context, collectionSlug, buyerAddress string, now time.Time) (*domain.Reservation, error)
	ListRecent(ctx context.Context, collectionSlug string, cutoff time.Time) ([]domain.Reservation, error)
	Reserve(ctx context.Context, res domain.Reservation, now time.Time) (bool, error)
	Get(ctx context.Context, inscriptionID string) (*domain.Reservation, error)
	Delete(ctx context.Context, inscriptionID string) error
}

// AssetIndex is the slice of the asset index the service consumes.
type AssetIndex interface {
	EligibleInscriptionIDs(ctx context.Context, collectionSlug string) ([]string, error)
	CollectionInscription(ctx context.Context, collectionSlug, inscriptionID string) (domain.Inscription, error)
}

// Seller completes a reserved swap.
type Seller interface {
	Sell(ctx context.Context, req signer.SellRequest) (domain.SellReceipt, error)
}

// ReserveResult is a successful allocation: the reservation itself plus
// the asset's metadata for display while the buyer builds their
// transaction.
type ReserveResult struct {
	Reservation domain.Reservation
	Metadata    domain.Inscription
}

type eligibleCache struct {
	ids       []string
	expiresAt time.Time
}

type ReserveService struct {
	policies *policy.Registry
	repo     ReservationRepository
	index    AssetIndex
	seller   Seller
	clock    clock.Clock
	runner   *serial.Runner
	log      slog.Logger
	metrics  *observability.Metrics

	ttl           time.Duration
	historyWindow time.Duration
	cacheTTL      time.Duration

	mu     sync.Mutex
	caches map[string]*eligibleCache
}

// ReserveOption customizes a ReserveService.
type ReserveOption func(*ReserveService)

func WithReservationTTL(d time.Duration) ReserveOption {
	return func(s *ReserveService) { s.ttl = d }
}

func WithHistoryWindow(d time.Duration) ReserveOption {
	return func(s *ReserveService) { s.historyWindow = d }
}

func WithEligibleCacheTTL(d time.Duration) ReserveOption {
	return func(s *ReserveService) { s.cacheTTL = d }
}

func NewReserveService(
	policies *policy.Registry,
	repo ReservationRepository,
	index AssetIndex,
	seller Seller,
	clk clock.Clock,
	log slog.Logger,
	metrics *observability.Metrics,
	opts ...ReserveOption,
) *ReserveService {
	s := &ReserveService{
		policies:      policies,
		repo:          repo,
		index:         index,
		seller:        seller,
		clock:         clk,
		runner:        serial.NewRunner(),
		log:           log,
		metrics:       metrics,
		ttl:           defaultReservationTTL,
		historyWindow: defaultHistoryWindow,
		cacheTTL:      defaultEligibleCacheTTL,
		caches:        make(map[string]*eligibleCache),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve allocates one eligible inscription from the collection's pool
// to the buyer for the reservation TTL. A buyer who already holds an
// active reservation in the pool gets the same reservation back, so a
// retried request cannot consume a second asset.
//
// Candidate selection and the reservation write run inside the pool's
// serialized context. The store-level conditional write still guards
// against racing instances, but within one process at most one request
// per pool picks at a time, so the pick is made against current state.
func (s *ReserveService) Reserve(ctx context.Context, collectionSlug, buyerAddress string) (ReserveResult, error) {
	collection, err := s.policies.Lookup(collectionSlug)
	if err != nil {
		return ReserveResult{}, err
	}
	if !collection.Launchpad {
		return ReserveResult{}, domain.ErrNotLaunchpad
	}

	var reserved domain.Reservation
	err = s.runner.Do(ctx, "reserve:"+collectionSlug, func(ctx context.Context) error {
		var err error
		reserved, err = s.reserve(ctx, collectionSlug, buyerAddress)
		return err
	})
	if err != nil {
		s.metrics.ReservationsTotal.WithLabelValues(reserveOutcome(err)).Inc()
		return ReserveResult{}, err
	}

	meta, err := s.index.CollectionInscription(ctx, collectionSlug, reserved.InscriptionID)
	if err != nil {
		// Without metadata the buyer cannot act on the reservation, so
		// hand the asset straight back to the pool.
		if delErr := s.repo.Delete(ctx, reserved.InscriptionID); delErr != nil {
			s.log.Warnf("release reservation %s after metadata failure: %s",
				reserved.InscriptionID, observability.SafeError(delErr))
		}
		s.metrics.ReservationsTotal.WithLabelValues("error").Inc()
		return ReserveResult{}, fmt.Errorf("load inscription metadata: %w", err)
	}

	s.metrics.ReservationsTotal.WithLabelValues("reserved").Inc()
	return ReserveResult{Reservation: reserved, Metadata: meta}, nil
}

func (s *ReserveService) reserve(ctx context.Context, collectionSlug, buyerAddress string) (domain.Reservation, error) {
	eligible, err := s.eligibleIDs(ctx, collectionSlug)
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(eligible) == 0 {
		return domain.Reservation{}, domain.ErrSoldOut
	}

	now := s.clock.Now()
	existing, err := s.repo.FindActiveByBuyer(ctx, collectionSlug, buyerAddress, now)
	if err != nil {
		return domain.Reservation{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		recent, err := s.repo.ListRecent(ctx, collectionSlug, now.Add(-s.historyWindow))
		if err != nil {
			return domain.Reservation{}, err
		}
		active := make(map[string]bool, len(recent))
		seen := make(map[string]bool, len(recent))
		for _, r := range recent {
			seen[r.InscriptionID] = true
			if r.Active(now) {
				active[r.InscriptionID] = true
			}
		}

		candidates := make([]string, 0, len(eligible))
		preferred := make([]string, 0, len(eligible))
		for _, id := range eligible {
			if active[id] {
				continue
			}
			candidates = append(candidates, id)
			if !seen[id] {
				preferred = append(preferred, id)
			}
		}
		if len(candidates) == 0 {
			return domain.Reservation{}, domain.ErrSoldOut
		}
		// Prefer assets nobody has touched recently so a burst of
		// buyers fans out across the pool.
		pool := preferred
		if len(pool) == 0 {
			pool = candidates
		}
		pick := pool[rand.IntN(len(pool))]

		res := domain.Reservation{
			InscriptionID:  pick,
			CollectionSlug: collectionSlug,
			BuyerAddress:   buyerAddress,
			ExpiresAt:      now.Add(s.ttl),
		}
		won, err := s.repo.Reserve(ctx, res, now)
		if err != nil {
			return domain.Reservation{}, err
		}
		if won {
			s.dropEligible(collectionSlug, pick)
			return res, nil
		}
		// Another instance claimed the pick between our list and our
		// write. Re-read and try again.
	}
	return domain.Reservation{}, domain.ErrSoldOut
}

// Mint completes a reserved swap. The signed transaction must place the
// inscription with the buyer who holds the reservation; on success the
// reservation is consumed, on failure it stays in place so the buyer can
// retry before expiry.
func (s *ReserveService) Mint(ctx context.Context, collectionSlug, inscriptionID, buyerAddress, signedPSBT string) (domain.SellReceipt, error) {
	collection, err := s.policies.Lookup(collectionSlug)
	if err != nil {
		return domain.SellReceipt{}, err
	}
	if !collection.Launchpad {
		return domain.SellReceipt{}, domain.ErrNotLaunchpad
	}

	res, err := s.repo.Get(ctx, inscriptionID)
	if err != nil {
		return domain.SellReceipt{}, err
	}
	if res == nil || res.CollectionSlug != collectionSlug {
		return domain.SellReceipt{}, domain.ErrNoReservation
	}
	if res.BuyerAddress != buyerAddress {
		return domain.SellReceipt{}, domain.ErrReservationMismatch
	}

	receipt, err := s.seller.Sell(ctx, signer.SellRequest{
		CollectionSlug:       collectionSlug,
		InscriptionID:        inscriptionID,
		SignedPSBT:           signedPSBT,
		ExpectedBuyerAddress: res.BuyerAddress,
	})
	if err != nil {
		return domain.SellReceipt{}, err
	}

	if err := s.repo.Delete(ctx, inscriptionID); err != nil {
		// The sale is already recorded. An expired leftover row is
		// harmless, so log and move on.
		s.log.Warnf("delete consumed reservation %s: %s", inscriptionID, observability.SafeError(err))
	}
	return receipt, nil
}

// eligibleIDs returns the cached eligible list for the pool, refreshing
// it from the index when stale. Only the pool's serialized context calls
// this, so the slice is never mutated concurrently; the map itself still
// takes the mutex because distinct pools share it.
func (s *ReserveService) eligibleIDs(ctx context.Context, collectionSlug string) ([]string, error) {
	now := s.clock.Now()

	s.mu.Lock()
	cached := s.caches[collectionSlug]
	s.mu.Unlock()
	if cached != nil && now.Before(cached.expiresAt) {
		return cached.ids, nil
	}

	ids, err := s.index.EligibleInscriptionIDs(ctx, collectionSlug)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.caches[collectionSlug] = &eligibleCache{ids: ids, expiresAt: now.Add(s.cacheTTL)}
	s.mu.Unlock()
	return ids, nil
}

// dropEligible removes a just-reserved asset from the cached pool so the
// next pick within the cache TTL does not re-offer it.
func (s *ReserveService) dropEligible(collectionSlug, inscriptionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached := s.caches[collectionSlug]
	if cached == nil {
		return
	}
	kept := cached.ids[:0]
	for _, id := range cached.ids {
		if id != inscriptionID {
			kept = append(kept, id)
		}
	}
	cached.ids = kept
}

func reserveOutcome(err error) string {
	if errors.Is(err, domain.ErrSoldOut) {
		return "sold_out"
	}
	return "error"
}
