package notifications

import (
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/google/uuid"
)

// Recipients selects who a notification is for: explicit users, every
// holder of a role, or both.
type Recipients struct {
	UserIDs []uuid.UUID
	Role    *enums.Role
}

// Payload is the content of a notification.
type Payload struct {
	Type         enums.NotificationType
	Title        string
	Message      string
	ProductID    *uuid.UUID
	OriginatorID *uuid.UUID
}

// Item is a notification as one viewer sees it.
type Item struct {
	ID           uuid.UUID              `json:"id"`
	Type         enums.NotificationType `json:"type"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
	ProductID    *uuid.UUID             `json:"product_id,omitempty"`
	OriginatorID *uuid.UUID             `json:"originator_id,omitempty"`
	Broadcast    bool                   `json:"broadcast"`
	Read         bool                   `json:"read"`
	CreatedAt    time.Time              `json:"created_at"`
}

func itemFromModel(n models.Notification, read bool) Item {
	return Item{
		ID:           n.ID,
		Type:         n.Type,
		Title:        n.Title,
		Message:      n.Message,
		ProductID:    n.ProductID,
		OriginatorID: n.OriginatorID,
		Broadcast:    n.IsBroadcast(),
		Read:         read,
		CreatedAt:    n.CreatedAt,
	}
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Role       enums.Role
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []Item `json:"items"`
	Cursor string `json:"cursor"`
}
