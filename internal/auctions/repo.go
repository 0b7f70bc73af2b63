package auctions

import (
	"context"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists auction lots and their bid history.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns an auctions repository bound to conn.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindForUpdate locks the product row for the rest of the transaction.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := db.ForUpdate(r.db.WithContext(ctx)).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// BidsFor returns every bid on the lot in placement order.
func (r *Repository) BidsFor(ctx context.Context, productID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC, amount_cents ASC").
		Find(&bids).Error
	return bids, err
}

// DistinctBidders lists everyone who has bid on the lot, minus exclude.
func (r *Repository) DistinctBidders(ctx context.Context, productID, exclude uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Bid{}).
		Where("product_id = ? AND bidder_id <> ?", productID, exclude).
		Distinct("bidder_id").
		Pluck("bidder_id", &ids).Error
	return ids, err
}

func (r *Repository) InsertBid(ctx context.Context, bid *models.Bid) error {
	return r.db.WithContext(ctx).Create(bid).Error
}

// ApplyBid installs a new highest bid if the row is still at version and
// active. Zero rows affected means another writer got there first.
func (r *Repository) ApplyBid(ctx context.Context, productID uuid.UUID, version int64, bid *models.Bid) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND version = ? AND status = ?", productID, version, enums.ProductStatusActive).
		UpdateColumns(map[string]any{
			"highest_bid_cents": bid.AmountCents,
			"highest_bidder_id": bid.BidderID,
			"highest_bid_at":    bid.CreatedAt,
			"bid_count":         gorm.Expr("bid_count + 1"),
			"version":           gorm.Expr("version + 1"),
			"updated_at":        bid.CreatedAt,
		})
	return res.RowsAffected, res.Error
}

// CloseIfEnded moves an active lot whose end time has passed to closed.
func (r *Repository) CloseIfEnded(ctx context.Context, productID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND status = ? AND end_time < ?", productID, enums.ProductStatusActive, now).
		UpdateColumns(map[string]any{
			"status":     enums.ProductStatusClosed,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// RecordResponse stores the seller's decision on the standing bid.
func (r *Repository) RecordResponse(ctx context.Context, productID uuid.UUID, accept bool, now time.Time) error {
	updates := map[string]any{
		"bid_accepted":     accept,
		"bid_responded_at": now,
		"version":          gorm.Expr("version + 1"),
		"updated_at":       now,
	}
	if accept {
		updates["status"] = enums.ProductStatusSold
	}
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumns(updates).Error
}

// EndedActiveIDs lists active lots whose end time is before now.
func (r *Repository) EndedActiveIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("status = ? AND end_time < ?", enums.ProductStatusActive, now).
		Order("end_time ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// OverdueDeliveryIDs lists sold, undelivered lots accepted before cutoff.
func (r *Repository) OverdueDeliveryIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("status = ? AND bid_accepted = ? AND product_delivered = ? AND bid_responded_at < ?",
			enums.ProductStatusSold, true, false, cutoff).
		Order("bid_responded_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ListFilter narrows product listings.
type ListFilter struct {
	Status   *enums.ProductStatus
	SellerID *uuid.UUID
	BidderID *uuid.UUID
	WinnerID *uuid.UUID
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Product, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.BidderID != nil {
		sub := r.db.Model(&models.Bid{}).Select("product_id").Where("bidder_id = ?", *filter.BidderID)
		query = query.Where("id IN (?)", sub)
	}
	if filter.WinnerID != nil {
		query = query.Where("highest_bidder_id = ? AND bid_accepted = ?", *filter.WinnerID, true)
	}
	if filter.Cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	var rows []models.Product
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(filter.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, filter.Limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}
