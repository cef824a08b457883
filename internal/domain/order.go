package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFailed    OrderStatus = "failed"
)

// ActiveOrderStatuses are the statuses that block re-sale of an inscription.
var ActiveOrderStatuses = []OrderStatus{OrderStatusPending, OrderStatusConfirmed}

// Order records one finalized swap. It is created exactly once per
// successful sale; the pending → confirmed transition is driven by an
// external confirmation process polling the chain.
type Order struct {
	ID             string
	CollectionSlug string
	InscriptionID  string
	Status         OrderStatus
	Txid           string
	SignedTx       string
	BuyerAddress   string
	PriceSats      int64
	ExtraDetails   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SellReceipt is the outcome of a completed sale. BroadcastError is set
// when the network submission failed after the order was recorded; the
// order itself remains valid and can be rebroadcast.
type SellReceipt struct {
	Order          Order
	BroadcastError string
}
