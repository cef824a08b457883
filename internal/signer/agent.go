// Package signer completes escrow-free inscription swaps: it validates a
// buyer's partially signed transaction against the swap contract, adds the
// store wallet's signature, and records the resulting order. All work for
// one inscription runs inside that inscription's serialized context, so
// the duplicate-sale guard and the order insert can never interleave for
// the same asset.
package signer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/slog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cimillas/ordswap/internal/clock"
	"github.com/cimillas/ordswap/internal/domain"
	"github.com/cimillas/ordswap/internal/mempool"
	"github.com/cimillas/ordswap/internal/observability"
	"github.com/cimillas/ordswap/internal/policy"
	"github.com/cimillas/ordswap/internal/serial"
	"github.com/cimillas/ordswap/internal/swap"
)

// feeEstimateTarget is the confirmation target (in blocks) whose estimate
// sets the minimum acceptable fee rate.
const feeEstimateTarget = "2"

// AssetIndex is the slice of the asset index the signer consumes.
type AssetIndex interface {
	CollectionInscription(ctx context.Context, collectionSlug, inscriptionID string) (domain.Inscription, error)
	LiveInscription(ctx context.Context, inscriptionID string) (domain.Inscription, error)
}

// ChainRelay is the slice of the chain relay the signer consumes.
type ChainRelay interface {
	FeeEstimates(ctx context.Context) (map[string]float64, error)
	TestAccept(ctx context.Context, rawTxHex string) (mempool.TestResult, error)
	Broadcast(ctx context.Context, rawTxHex string) (string, error)
	TxOutspend(ctx context.Context, txid string, vout uint32) (mempool.Outspend, error)
}

// OrderLedger is the slice of the order store the signer consumes.
type OrderLedger interface {
	ActiveByInscription(ctx context.Context, inscriptionID string) (*domain.Order, error)
	Create(ctx context.Context, order domain.Order) error
}

// InputSigner is the store wallet.
type InputSigner interface {
	TaprootAddress() string
	SignInscriptionInput(p *psbt.Packet, idx int) error
}

// SellRequest asks the agent to complete one swap. ExpectedBuyerAddress
// is set on the reservation path and binds the transaction's inscription
// output to the reserved buyer.
type SellRequest struct {
	CollectionSlug       string
	InscriptionID        string
	SignedPSBT           string
	ExpectedBuyerAddress string
}

type Agent struct {
	policies *policy.Registry
	index    AssetIndex
	relay    ChainRelay
	ledger   OrderLedger
	wallet   InputSigner
	params   *chaincfg.Params
	clock    clock.Clock
	runner   *serial.Runner
	log      slog.Logger
	metrics  *observability.Metrics
}

func NewAgent(
	policies *policy.Registry,
	index AssetIndex,
	relay ChainRelay,
	ledger OrderLedger,
	wallet InputSigner,
	params *chaincfg.Params,
	clk clock.Clock,
	log slog.Logger,
	metrics *observability.Metrics,
) *Agent {
	return &Agent{
		policies: policies,
		index:    index,
		relay:    relay,
		ledger:   ledger,
		wallet:   wallet,
		params:   params,
		clock:    clk,
		runner:   serial.NewRunner(),
		log:      log,
		metrics:  metrics,
	}
}

// TaprootAddress exposes the store's inscription-holding address.
func (a *Agent) TaprootAddress() string {
	return a.wallet.TaprootAddress()
}

// Sell runs the full validation/signing sequence for one swap inside the
// inscription's serialized context and returns the recorded order. A
// broadcast failure after the order exists is reported in the receipt,
// not as an error.
func (a *Agent) Sell(ctx context.Context, req SellRequest) (domain.SellReceipt, error) {
	var receipt domain.SellReceipt
	key := req.CollectionSlug + ":" + req.InscriptionID
	err := a.runner.Do(ctx, key, func(ctx context.Context) error {
		var err error
		receipt, err = a.sell(ctx, req)
		return err
	})
	if err != nil {
		a.metrics.SellFailures.WithLabelValues(failureCode(err)).Inc()
		return domain.SellReceipt{}, err
	}
	a.metrics.OrdersCreated.Inc()
	return receipt, nil
}

func (a *Agent) sell(ctx context.Context, req SellRequest) (domain.SellReceipt, error) {
	p, err := swap.ParseSignedPSBT(req.SignedPSBT)
	if err != nil {
		return domain.SellReceipt{}, err
	}

	collection, err := a.policies.Lookup(req.CollectionSlug)
	if err != nil {
		return domain.SellReceipt{}, err
	}
	insc, err := a.index.CollectionInscription(ctx, req.CollectionSlug, req.InscriptionID)
	if err != nil {
		return domain.SellReceipt{}, err
	}

	existing, err := a.ledger.ActiveByInscription(ctx, insc.ID)
	if err != nil {
		return domain.SellReceipt{}, err
	}
	if existing != nil {
		return domain.SellReceipt{}, domain.ErrAlreadySelling
	}

	buyerAddress, err := swap.BuyerAddress(p, a.params)
	if err != nil {
		return domain.SellReceipt{}, err
	}
	if req.ExpectedBuyerAddress != "" && buyerAddress != req.ExpectedBuyerAddress {
		return domain.SellReceipt{}, domain.ErrBuyerMismatch
	}

	if err := swap.Validate(p, collection, insc, a.params); err != nil {
		return domain.SellReceipt{}, err
	}
	if err := a.checkFreshness(ctx, insc); err != nil {
		return domain.SellReceipt{}, err
	}

	if err := a.wallet.SignInscriptionInput(p, swap.InscriptionInputIndex); err != nil {
		return domain.SellReceipt{}, err
	}
	_, signedHex, txid, err := swap.Finalize(p)
	if err != nil {
		return domain.SellReceipt{}, err
	}

	if err := a.checkAcceptance(ctx, signedHex); err != nil {
		return domain.SellReceipt{}, err
	}

	order, err := a.recordOrder(ctx, collection, insc, p, buyerAddress, txid, signedHex)
	if err != nil {
		return domain.SellReceipt{}, err
	}
	receipt := domain.SellReceipt{Order: order}

	if _, err := a.relay.Broadcast(ctx, signedHex); err != nil {
		a.metrics.BroadcastErrors.Inc()
		a.log.Warnf("broadcast failed for order %s: %s", order.ID, observability.SafeError(err))
		receipt.BroadcastError = observability.SafeError(err)
	}
	return receipt, nil
}

// checkFreshness re-confirms, at the moment of validation, that the
// inscription still sits at its known location and still belongs to the
// store wallet. A stale reservation must not outlive a sale that happened
// elsewhere.
func (a *Agent) checkFreshness(ctx context.Context, insc domain.Inscription) error {
	vout, ok := insc.LocationVout()
	if !ok {
		return fmt.Errorf("%w: inscription has no known location", domain.ErrNotEligible)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		live, err := a.index.LiveInscription(gctx, insc.ID)
		if err != nil {
			return err
		}
		if live.Satpoint != insc.Satpoint {
			return fmt.Errorf("%w: inscription has moved", domain.ErrNotEligible)
		}
		if live.Address != a.wallet.TaprootAddress() {
			return fmt.Errorf("%w: inscription is not owned by the store wallet", domain.ErrNotEligible)
		}
		return nil
	})
	g.Go(func() error {
		outspend, err := a.relay.TxOutspend(gctx, insc.LocationTxid(), vout)
		if err != nil {
			return err
		}
		if outspend.Spent {
			return fmt.Errorf("%w: inscription output is already spent", domain.ErrNotEligible)
		}
		return nil
	})
	return g.Wait()
}

// checkAcceptance submits the finalized transaction to the relay's
// acceptance test and enforces the fee floor. A rate below the current
// estimate is the expected, recoverable failure: the caller re-quotes and
// retries with a fresh transaction.
func (a *Agent) checkAcceptance(ctx context.Context, signedHex string) error {
	var (
		estimates map[string]float64
		test      mempool.TestResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		estimates, err = a.relay.FeeEstimates(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		test, err = a.relay.TestAccept(gctx, signedHex)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if !test.Allowed {
		reason := test.RejectReason
		if reason == "" {
			reason = "unknown"
		}
		return fmt.Errorf("%w: %s", domain.ErrMempoolReject, reason)
	}
	if test.EffectiveFeeRate <= 0 {
		return domain.ErrFeeRateUnavailable
	}
	minRate, ok := estimates[feeEstimateTarget]
	if !ok || minRate <= 0 {
		return domain.ErrFeeRateUnavailable
	}
	if test.EffectiveFeeRate < minRate {
		return domain.ErrFeeTooLow
	}
	return nil
}

func (a *Agent) recordOrder(
	ctx context.Context,
	collection domain.CollectionPolicy,
	insc domain.Inscription,
	p *psbt.Packet,
	buyerAddress, txid, signedHex string,
) (domain.Order, error) {
	extra, err := json.Marshal(map[string]any{
		"optional_payments": swap.MatchOptionalPayments(p, collection, a.params),
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("encode extra details: %w", err)
	}

	now := a.clock.Now()
	order := domain.Order{
		ID:             uuid.NewString(),
		CollectionSlug: collection.Slug,
		InscriptionID:  insc.ID,
		Status:         domain.OrderStatusPending,
		Txid:           txid,
		SignedTx:       signedHex,
		BuyerAddress:   buyerAddress,
		PriceSats:      collection.PriceSats,
		ExtraDetails:   string(extra),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.ledger.Create(ctx, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidPSBT):
		return "invalid_psbt"
	case errors.Is(err, domain.ErrAlreadySelling):
		return "already_selling"
	case errors.Is(err, domain.ErrBuyerMismatch):
		return "buyer_mismatch"
	case errors.Is(err, domain.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, domain.ErrFeeTooLow):
		return "fee_too_low"
	case errors.Is(err, domain.ErrFeeRateUnavailable):
		return "fee_rate_missing"
	case errors.Is(err, domain.ErrMempoolReject):
		return "mempool_reject"
	case errors.Is(err, domain.ErrInscriptionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCollectionNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
