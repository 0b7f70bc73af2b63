package models

import (
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/types"
	"github.com/google/uuid"
)

// Transaction is a wallet ledger entry. Only freeze rows move between
// statuses; they start pending and settle exactly once.
type Transaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Type        enums.TransactionType   `gorm:"column:type;type:text;not null"`
	Status      enums.TransactionStatus `gorm:"column:status;type:text;not null;index"`
	AmountCents int64                   `gorm:"column:amount_cents;not null"`
	Currency    string                  `gorm:"column:currency;type:text;not null"`
	FromUserID  uuid.UUID               `gorm:"column:from_user_id;type:uuid;not null;index"`
	ToUserID    *uuid.UUID              `gorm:"column:to_user_id;type:uuid;index"`
	ProductID   *uuid.UUID              `gorm:"column:product_id;type:uuid;index"`
	Metadata    types.JSONMap           `gorm:"column:metadata;type:text;not null"`
	CreatedAt   time.Time               `gorm:"column:created_at;not null"`
	CompletedAt *time.Time              `gorm:"column:completed_at"`
}

func (Transaction) TableName() string {
	return "wallet_transactions"
}
