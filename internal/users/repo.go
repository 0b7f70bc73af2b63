package users

import (
	"context"

	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateIfMissing inserts the profile unless a row with the same id exists.
func (r *Repository) CreateIfMissing(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(user).Error
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListIDsByRole returns every user id holding role, minus exclude.
func (r *Repository) ListIDsByRole(ctx context.Context, role enums.Role, exclude *uuid.UUID) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", role)
	if exclude != nil {
		query = query.Where("id <> ?", *exclude)
	}
	var ids []uuid.UUID
	if err := query.Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateRatingSummary overwrites the cached rating aggregate.
func (r *Repository) UpdateRatingSummary(ctx context.Context, id uuid.UUID, average float64, count int64) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"rating_average": average,
			"rating_count":   count,
		}).Error
}
