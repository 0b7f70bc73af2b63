package ratings

import (
	"context"

	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists ratings.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Create(ctx context.Context, rating *models.Rating) error {
	return r.db.WithContext(ctx).Create(rating).Error
}

func (r *Repository) Exists(ctx context.Context, productID, fromUserID, toUserID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Rating{}).
		Where("product_id = ? AND from_user_id = ? AND to_user_id = ?", productID, fromUserID, toUserID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

type summaryRow struct {
	Average float64 `gorm:"column:average"`
	Count   int64   `gorm:"column:count"`
}

// Summary aggregates every rating received by userID.
func (r *Repository) Summary(ctx context.Context, userID uuid.UUID) (summaryRow, error) {
	var row summaryRow
	err := r.db.WithContext(ctx).Model(&models.Rating{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("to_user_id = ?", userID).
		Scan(&row).Error
	return row, err
}

// ListFor returns ratings received by userID, newest first.
func (r *Repository) ListFor(ctx context.Context, userID uuid.UUID, limit int) ([]models.Rating, error) {
	var rows []models.Rating
	err := r.db.WithContext(ctx).
		Where("to_user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
