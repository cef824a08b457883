package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/cimillas/ordswap/internal/app"
	"github.com/cimillas/ordswap/internal/domain"
	"github.com/cimillas/ordswap/internal/policy"
	"github.com/cimillas/ordswap/internal/signer"
	"github.com/cimillas/ordswap/internal/swap"
)

// Allocator is the minimal interface needed for the reservation flow.
type Allocator interface {
	Reserve(ctx context.Context, collectionSlug, buyerAddress string) (app.ReserveResult, error)
	Mint(ctx context.Context, collectionSlug, inscriptionID, buyerAddress, signedPSBT string) (domain.SellReceipt, error)
}

// Seller is the minimal interface needed for direct sales.
type Seller interface {
	Sell(ctx context.Context, req signer.SellRequest) (domain.SellReceipt, error)
}

// HandleCollections routes /collections/{slug}/{reserve|mint|sell}.
func HandleCollections(alloc Allocator, seller Seller, policies *policy.Registry, params *chaincfg.Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug, action, ok := parseCollectionPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		switch action {
		case "reserve":
			handleReserve(w, r, alloc, params, slug)
		case "mint":
			handleMint(w, r, alloc, params, slug)
		case "sell":
			handleSell(w, r, seller, policies, slug)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseCollectionPath(path string) (slug, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "collections" {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type reserveRequest struct {
	BuyerAddress string `json:"buyer_address"`
}

type reserveResponse struct {
	InscriptionID string             `json:"inscription_id"`
	ExpiresAt     time.Time          `json:"expires_at"`
	Metadata      domain.Inscription `json:"metadata"`
}

func handleReserve(w http.ResponseWriter, r *http.Request, alloc Allocator, params *chaincfg.Params, slug string) {
	var req reserveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	buyer, ok := swap.NormalizeAddress(req.BuyerAddress, params)
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidBuyerAddress, "invalid buyer address")
		return
	}

	res, err := alloc.Reserve(r.Context(), slug, buyer)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(reserveResponse{
		InscriptionID: res.Reservation.InscriptionID,
		ExpiresAt:     res.Reservation.ExpiresAt,
		Metadata:      res.Metadata,
	})
}

type mintRequest struct {
	InscriptionID string `json:"inscription_id"`
	BuyerAddress  string `json:"buyer_address"`
	SignedPSBT    string `json:"signed_psbt"`
}

type orderResponse struct {
	ID             string    `json:"id"`
	CollectionSlug string    `json:"collection_slug"`
	InscriptionID  string    `json:"inscription_id"`
	Status         string    `json:"status"`
	Txid           string    `json:"txid"`
	BuyerAddress   string    `json:"buyer_address"`
	PriceSats      int64     `json:"price_sats"`
	CreatedAt      time.Time `json:"created_at"`
}

type sellResponse struct {
	Order          orderResponse `json:"order"`
	BroadcastError string        `json:"broadcast_error,omitempty"`
}

func toSellResponse(receipt domain.SellReceipt) sellResponse {
	return sellResponse{
		Order: orderResponse{
			ID:             receipt.Order.ID,
			CollectionSlug: receipt.Order.CollectionSlug,
			InscriptionID:  receipt.Order.InscriptionID,
			Status:         string(receipt.Order.Status),
			Txid:           receipt.Order.Txid,
			BuyerAddress:   receipt.Order.BuyerAddress,
			PriceSats:      receipt.Order.PriceSats,
			CreatedAt:      receipt.Order.CreatedAt,
		},
		BroadcastError: receipt.BroadcastError,
	}
}

func handleMint(w http.ResponseWriter, r *http.Request, alloc Allocator, params *chaincfg.Params, slug string) {
	var req mintRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.InscriptionID == "" || req.SignedPSBT == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "inscription_id and signed_psbt are required")
		return
	}
	buyer, ok := swap.NormalizeAddress(req.BuyerAddress, params)
	if !ok {
		writeError(w, http.StatusBadRequest, codeInvalidBuyerAddress, "invalid buyer address")
		return
	}

	receipt, err := alloc.Mint(r.Context(), slug, req.InscriptionID, buyer, req.SignedPSBT)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toSellResponse(receipt))
}

type sellRequest struct {
	InscriptionID string `json:"inscription_id"`
	SignedPSBT    string `json:"signed_psbt"`
}

func handleSell(w http.ResponseWriter, r *http.Request, seller Seller, policies *policy.Registry, slug string) {
	var req sellRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if req.InscriptionID == "" || req.SignedPSBT == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "inscription_id and signed_psbt are required")
		return
	}

	collection, err := policies.Lookup(slug)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Launchpad assets are allocated through reservations; the open sell
	// path would let a buyer bypass the queue.
	if collection.Launchpad {
		writeDomainError(w, domain.ErrLaunchpadOnlyMint)
		return
	}

	receipt, err := seller.Sell(r.Context(), signer.SellRequest{
		CollectionSlug: slug,
		InscriptionID:  req.InscriptionID,
		SignedPSBT:     req.SignedPSBT,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toSellResponse(receipt))
}
