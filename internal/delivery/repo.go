package delivery

import (
	"context"

	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads the lots awaiting settlement.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindForUpdate(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := db.ForUpdate(r.db.WithContext(ctx)).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) Find(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Pending lists sold lots won by winnerID whose escrow is still held,
// oldest acceptance first.
func (r *Repository) Pending(ctx context.Context, winnerID uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("highest_bidder_id = ? AND status = ? AND bid_accepted = ? AND product_delivered = ?",
			winnerID, enums.ProductStatusSold, true, false).
		Order("bid_responded_at ASC").
		Find(&rows).Error
	return rows, err
}
