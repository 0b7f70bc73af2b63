package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
)

// UserDTO is the public profile shape.
type UserDTO struct {
	ID            uuid.UUID  `json:"id"`
	Role          enums.Role `json:"role"`
	DisplayName   string     `json:"display_name"`
	RatingAverage float64    `json:"rating_average"`
	RatingCount   int64      `json:"rating_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// EnsureProfileInput carries identity claims for lazy profile creation.
type EnsureProfileInput struct {
	UserID      uuid.UUID
	Role        enums.Role
	DisplayName string
}

// FromModel maps a persisted user to the transport DTO.
func FromModel(u *models.User) UserDTO {
	return UserDTO{
		ID:            u.ID,
		Role:          u.Role,
		DisplayName:   u.DisplayName,
		RatingAverage: u.RatingAverage,
		RatingCount:   u.RatingCount,
		CreatedAt:     u.CreatedAt,
	}
}
