package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, rows []models.Notification) error
	List(ctx context.Context, params listNotificationsParams) ([]viewerRow, *pagination.Cursor, error)
	FindVisible(ctx context.Context, viewer viewer, notificationID uuid.UUID) (*models.Notification, error)
	MarkDirectRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (int64, error)
	MarkBroadcastRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (int64, error)
	MarkAllRead(ctx context.Context, viewer viewer, now time.Time) (int64, error)
	UnreadCount(ctx context.Context, viewer viewer) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// viewer is the user a query is evaluated for.
type viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

type listNotificationsParams struct {
	Viewer     viewer
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

// viewerRow is a notification together with the viewer's read flag.
type viewerRow struct {
	models.Notification `gorm:"embedded"`
	ViewerRead          bool `gorm:"column:viewer_read"`
}

const (
	visibleClause = "(notifications.recipient_id = ? OR (notifications.recipient_role = ? AND (notifications.originator_id IS NULL OR notifications.originator_id <> ?)))"
	readJoin      = "LEFT JOIN notification_reads nr ON nr.notification_id = notifications.id AND nr.user_id = ?"
	unreadClause  = "notifications.read_at IS NULL AND nr.user_id IS NULL"
)

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateBatch(ctx context.Context, rows []models.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 200).Error
}

func (r *repositoryImpl) visible(ctx context.Context, v viewer) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Joins(readJoin, v.UserID).
		Where(visibleClause, v.UserID, v.Role, v.UserID)
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]viewerRow, *pagination.Cursor, error) {
	query := r.visible(ctx, params.Viewer).
		Select("notifications.*, CASE WHEN notifications.read_at IS NOT NULL OR nr.user_id IS NOT NULL THEN 1 ELSE 0 END AS viewer_read")
	if params.UnreadOnly {
		query = query.Where(unreadClause)
	}
	if params.Cursor != nil {
		query = query.Where("(notifications.created_at < ? OR (notifications.created_at = ? AND notifications.id < ?))",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []viewerRow
	if err := query.
		Order("notifications.created_at DESC, notifications.id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Scan(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(row viewerRow) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

func (r *repositoryImpl) FindVisible(ctx context.Context, v viewer, notificationID uuid.UUID) (*models.Notification, error) {
	var row models.Notification
	err := r.db.WithContext(ctx).
		Where("notifications.id = ?", notificationID).
		Where(visibleClause, v.UserID, v.Role, v.UserID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) MarkDirectRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", notificationID, userID).
		UpdateColumn("read_at", now)
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) MarkBroadcastRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.NotificationRead{NotificationID: notificationID, UserID: userID, ReadAt: now})
	return result.RowsAffected, result.Error
}

// MarkAllRead flags every visible notification read for the viewer and
// returns how many changed.
func (r *repositoryImpl) MarkAllRead(ctx context.Context, v viewer, now time.Time) (int64, error) {
	direct := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", v.UserID).
		UpdateColumn("read_at", now)
	if direct.Error != nil {
		return 0, direct.Error
	}

	broadcast := r.db.WithContext(ctx).Exec(`
INSERT INTO notification_reads (notification_id, user_id, read_at)
SELECT n.id, ?, ? FROM notifications n
WHERE n.recipient_role = ?
  AND (n.originator_id IS NULL OR n.originator_id <> ?)
  AND NOT EXISTS (
    SELECT 1 FROM notification_reads r WHERE r.notification_id = n.id AND r.user_id = ?
  )`, v.UserID, now, v.Role, v.UserID, v.UserID)
	if broadcast.Error != nil {
		return 0, broadcast.Error
	}
	return direct.RowsAffected + broadcast.RowsAffected, nil
}

func (r *repositoryImpl) UnreadCount(ctx context.Context, v viewer) (int64, error) {
	var count int64
	err := r.visible(ctx, v).Where(unreadClause).Count(&count).Error
	return count, err
}
