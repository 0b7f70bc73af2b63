package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
)

const maxDLQErrorLen = 1024

// DLQRepository stores outbox events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(conn *gorm.DB) *DLQRepository {
	return &DLQRepository{db: conn}
}

// InsertTx records a dead letter inside the publisher's batch transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// DeleteFailedBefore removes at most limit dead letters recorded before
// cutoff.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	batch := r.db.Model(&models.OutboxDLQ{}).
		Select("id").
		Where("failed_at < ?", cutoff).
		Order("failed_at").
		Limit(limit)
	result := r.db.WithContext(ctx).Where("id IN (?)", batch).Delete(&models.OutboxDLQ{})
	return result.RowsAffected, result.Error
}

// truncateDLQError caps message at maxDLQErrorLen bytes without splitting a
// UTF-8 sequence.
func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	cut := maxDLQErrorLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
