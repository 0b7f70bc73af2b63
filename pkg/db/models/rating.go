package models

import (
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/google/uuid"
)

// Rating is one party's score of the other for a delivered lot. The composite
// key allows exactly one rating per (product, rater, ratee).
type Rating struct {
	ProductID  uuid.UUID  `gorm:"column:product_id;type:uuid;primaryKey"`
	FromUserID uuid.UUID  `gorm:"column:from_user_id;type:uuid;primaryKey"`
	ToUserID   uuid.UUID  `gorm:"column:to_user_id;type:uuid;primaryKey;index"`
	FromRole   enums.Role `gorm:"column:from_role;type:text;not null"`
	ToRole     enums.Role `gorm:"column:to_role;type:text;not null"`
	Score      int        `gorm:"column:rating;not null"`
	Review     string     `gorm:"column:review;type:text;not null;default:''"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
}
