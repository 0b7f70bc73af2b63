package models

import (
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/google/uuid"
)

// Notification is either addressed to one user (RecipientID) or broadcast to
// every user holding RecipientRole. Broadcast rows are read-tracked per user
// in NotificationRead.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	RecipientID   *uuid.UUID             `gorm:"column:recipient_id;type:uuid;index"`
	RecipientRole *enums.Role            `gorm:"column:recipient_role;type:text;index"`
	OriginatorID  *uuid.UUID             `gorm:"column:originator_id;type:uuid"`
	Type          enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title         string                 `gorm:"column:title;type:text;not null"`
	Message       string                 `gorm:"column:message;type:text;not null"`
	ProductID     *uuid.UUID             `gorm:"column:product_id;type:uuid"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;not null;index"`
}

// IsBroadcast reports whether the row targets a role rather than a user.
func (n Notification) IsBroadcast() bool {
	return n.RecipientID == nil && n.RecipientRole != nil
}

// NotificationRead records that a user has read a broadcast notification.
type NotificationRead struct {
	NotificationID uuid.UUID `gorm:"column:notification_id;type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	ReadAt         time.Time `gorm:"column:read_at;not null"`
}
