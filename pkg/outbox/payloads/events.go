package payloads

import (
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/google/uuid"
)

// ProductListedEvent announces a new lot to merchants.
type ProductListedEvent struct {
	ProductID          uuid.UUID      `json:"product_id"`
	SellerID           uuid.UUID      `json:"seller_id"`
	Name               string         `json:"name"`
	StartingPriceCents int64          `json:"starting_price_cents"`
	Quantity           int            `json:"quantity"`
	UnitType           enums.UnitType `json:"unit_type"`
	EndTime            time.Time      `json:"end_time"`
}

// BidPlacedEvent carries a new highest bid and who it displaced.
type BidPlacedEvent struct {
	ProductID   uuid.UUID `json:"product_id"`
	SellerID    uuid.UUID `json:"seller_id"`
	BidderID    uuid.UUID `json:"bidder_id"`
	ProductName string    `json:"product_name"`
	AmountCents int64     `json:"amount_cents"`
	BidCount    int       `json:"bid_count"`
	// OutbidUserIDs lists earlier bidders other than BidderID, deduplicated.
	OutbidUserIDs []uuid.UUID `json:"outbid_user_ids"`
	PlacedAt      time.Time   `json:"placed_at"`
}

// BidDecisionEvent is emitted for both bid_accepted and bid_rejected.
type BidDecisionEvent struct {
	ProductID           uuid.UUID  `json:"product_id"`
	SellerID            uuid.UUID  `json:"seller_id"`
	BidderID            uuid.UUID  `json:"bidder_id"`
	ProductName         string     `json:"product_name"`
	AmountCents         int64      `json:"amount_cents"`
	Accepted            bool       `json:"accepted"`
	EscrowTransactionID *uuid.UUID `json:"escrow_transaction_id,omitempty"`
}

// AuctionClosedEvent reports a lot whose bidding window elapsed.
type AuctionClosedEvent struct {
	ProductID       uuid.UUID  `json:"product_id"`
	SellerID        uuid.UUID  `json:"seller_id"`
	ProductName     string     `json:"product_name"`
	HighestBidCents *int64     `json:"highest_bid_cents,omitempty"`
	HighestBidderID *uuid.UUID `json:"highest_bidder_id,omitempty"`
}

// PaymentSettledEvent is emitted for payment_released and payment_refunded.
type PaymentSettledEvent struct {
	ProductID           uuid.UUID               `json:"product_id"`
	EscrowTransactionID uuid.UUID               `json:"escrow_transaction_id"`
	PayerID             uuid.UUID               `json:"payer_id"`
	PayeeID             uuid.UUID               `json:"payee_id"`
	ProductName         string                  `json:"product_name"`
	AmountCents         int64                   `json:"amount_cents"`
	Outcome             enums.TransactionStatus `json:"outcome"`
}

// NotificationRequestedEvent asks for one notification to be written as-is.
type NotificationRequestedEvent struct {
	RecipientID   *uuid.UUID             `json:"recipient_id,omitempty"`
	RecipientRole *enums.Role            `json:"recipient_role,omitempty"`
	OriginatorID  *uuid.UUID             `json:"originator_id,omitempty"`
	Type          enums.NotificationType `json:"type"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	ProductID     *uuid.UUID             `json:"product_id,omitempty"`
}
