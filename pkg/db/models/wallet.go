package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's spendable and escrow-frozen balances in minor units.
type Wallet struct {
	UserID             uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	BalanceCents       int64     `gorm:"column:balance_cents;not null;default:0"`
	FrozenBalanceCents int64     `gorm:"column:frozen_balance_cents;not null;default:0"`
	Currency           string    `gorm:"column:currency;type:text;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
