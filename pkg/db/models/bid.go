package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is an append-only record of every accepted bid on a lot.
type Bid struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null;index:idx_bids_product_created,priority:1"`
	BidderID    uuid.UUID `gorm:"column:bidder_id;type:uuid;not null;index"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_bids_product_created,priority:2"`
}
