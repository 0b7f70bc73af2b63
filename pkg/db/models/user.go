package models

import (
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/google/uuid"
)

// User is the marketplace profile for an identity issued by the auth provider.
// The rating columns are a denormalized cache of the ratings table.
type User struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Role          enums.Role `gorm:"column:role;type:text;not null;index"`
	DisplayName   string     `gorm:"column:display_name;type:text;not null"`
	RatingAverage float64    `gorm:"column:rating_average;not null;default:0"`
	RatingCount   int64      `gorm:"column:rating_count;not null;default:0"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
