package wallet

import (
	"context"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists wallets, ledger rows and the escrow columns of products.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to conn.
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

func (r *Repository) CreateIfMissing(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(wallet).Error
}

func (r *Repository) Find(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// FindForUpdate locks the wallet row for the rest of the transaction.
func (r *Repository) FindForUpdate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := db.ForUpdate(r.db.WithContext(ctx)).First(&wallet, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Credit adds amount to the spendable balance.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, amount int64, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{
			"balance_cents": gorm.Expr("balance_cents + ?", amount),
			"updated_at":    now,
		})
	return res.RowsAffected, res.Error
}

// MoveToFrozen debits balance into frozen balance; zero rows means the
// balance did not cover amount.
func (r *Repository) MoveToFrozen(ctx context.Context, userID uuid.UUID, amount int64, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ? AND balance_cents >= ?", userID, amount).
		UpdateColumns(map[string]any{
			"balance_cents":        gorm.Expr("balance_cents - ?", amount),
			"frozen_balance_cents": gorm.Expr("frozen_balance_cents + ?", amount),
			"updated_at":           now,
		})
	return res.RowsAffected, res.Error
}

// DrainFrozen removes amount from the frozen balance, optionally returning it
// to the spendable balance (refund) instead of letting it leave (release).
func (r *Repository) DrainFrozen(ctx context.Context, userID uuid.UUID, amount int64, toBalance bool, now time.Time) (int64, error) {
	updates := map[string]any{
		"frozen_balance_cents": gorm.Expr("frozen_balance_cents - ?", amount),
		"updated_at":           now,
	}
	if toBalance {
		updates["balance_cents"] = gorm.Expr("balance_cents + ?", amount)
	}
	res := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ? AND frozen_balance_cents >= ?", userID, amount).
		UpdateColumns(updates)
	return res.RowsAffected, res.Error
}

func (r *Repository) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *Repository) FindTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// SettleEscrow moves a pending freeze row to a terminal status. It is the
// single arbiter between release and refund: only one caller sees a row
// affected.
func (r *Repository) SettleEscrow(ctx context.Context, id uuid.UUID, status enums.TransactionStatus, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND type = ? AND status = ?", id, enums.TransactionFreeze, enums.TransactionStatusPending).
		UpdateColumns(map[string]any{
			"status":       status,
			"completed_at": now,
		})
	return res.RowsAffected, res.Error
}

// UpdateProductEscrow writes the escrow-related product columns.
func (r *Repository) UpdateProductEscrow(ctx context.Context, productID uuid.UUID, updates map[string]any) error {
	updates["version"] = gorm.Expr("version + 1")
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumns(updates).Error
}

type listTransactionsParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

// ListTransactions returns rows where the user pays or is paid, newest first.
func (r *Repository) ListTransactions(ctx context.Context, params listTransactionsParams) ([]models.Transaction, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("from_user_id = ? OR to_user_id = ?", params.UserID, params.UserID)
	if params.Cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Transaction
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(t models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return page, next, nil
}
