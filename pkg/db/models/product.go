package models

import (
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/types"
	"github.com/google/uuid"
)

// Product is a single-item ascending auction lot.
type Product struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	SellerID           uuid.UUID        `gorm:"column:seller_id;type:uuid;not null;index"`
	Name               string           `gorm:"column:name;type:text;not null"`
	Description        string           `gorm:"column:description;type:text;not null;default:''"`
	StartingPriceCents int64            `gorm:"column:starting_price_cents;not null"`
	Currency           string           `gorm:"column:currency;type:text;not null;default:'INR'"`
	Quantity           int              `gorm:"column:quantity;not null"`
	UnitType           enums.UnitType   `gorm:"column:unit_type;type:text;not null"`
	Grade              string           `gorm:"column:grade;type:text;not null;default:''"`
	ImageURLs          types.StringList `gorm:"column:image_urls;type:text;not null"`
	DurationHours      int              `gorm:"column:duration_hours;not null"`
	EndTime            time.Time        `gorm:"column:end_time;not null;index"`

	Status          enums.ProductStatus `gorm:"column:status;type:text;not null;index"`
	HighestBidCents *int64              `gorm:"column:highest_bid_cents"`
	HighestBidderID *uuid.UUID          `gorm:"column:highest_bidder_id;type:uuid"`
	HighestBidAt    *time.Time          `gorm:"column:highest_bid_at"`
	BidCount        int                 `gorm:"column:bid_count;not null;default:0"`

	BidAccepted         bool                `gorm:"column:bid_accepted;not null;default:false"`
	BidRespondedAt      *time.Time          `gorm:"column:bid_responded_at"`
	ProductDelivered    bool                `gorm:"column:product_delivered;not null;default:false"`
	DeliveredAt         *time.Time          `gorm:"column:delivered_at"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	EscrowTransactionID *uuid.UUID          `gorm:"column:escrow_transaction_id;type:uuid"`

	Version   int64     `gorm:"column:version;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasBid reports whether anyone has bid on the lot yet.
func (p *Product) HasBid() bool {
	return p != nil && p.HighestBidderID != nil && p.HighestBidCents != nil
}

// IsHighestBidder reports whether userID currently holds the winning bid.
func (p *Product) IsHighestBidder(userID uuid.UUID) bool {
	return p.HasBid() && *p.HighestBidderID == userID
}
