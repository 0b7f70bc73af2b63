package wallet

import (
	"context"

	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FreezeTx moves amount from the payer's balance into escrow inside tx and
// marks the product as held in escrow. The returned row is the pending
// freeze transaction; its id is the escrow id.
func (s *Service) FreezeTx(ctx context.Context, tx *gorm.DB, payerID, payeeID uuid.UUID, amountCents int64, productID uuid.UUID) (*models.Transaction, error) {
	if amountCents <= 0 {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidAmount, "escrow amount must be positive")
	}
	if payerID == uuid.Nil || payeeID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "payer, payee and product are required")
	}

	repo := s.repo.WithTx(tx)
	wallet, err := repo.FindForUpdate(ctx, payerID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.NewReason(pkgerrors.ReasonWalletNotFound, "payer wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payer wallet")
	}
	if wallet.BalanceCents < amountCents {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInsufficientFunds, "insufficient wallet balance").
			WithDetails(map[string]any{"balance_cents": wallet.BalanceCents, "required_cents": amountCents})
	}

	now := s.now()
	affected, err := repo.MoveToFrozen(ctx, payerID, amountCents, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freeze funds")
	}
	if affected == 0 {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInsufficientFunds, "insufficient wallet balance")
	}

	freeze := &models.Transaction{
		ID:          uuid.New(),
		Type:        enums.TransactionFreeze,
		Status:      enums.TransactionStatusPending,
		AmountCents: amountCents,
		Currency:    s.currency,
		FromUserID:  payerID,
		ToUserID:    &payeeID,
		ProductID:   &productID,
		Metadata:    types.JSONMap{},
		CreatedAt:   now,
	}
	if err := repo.InsertTransaction(ctx, freeze); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record freeze")
	}
	if err := repo.UpdateProductEscrow(ctx, productID, map[string]any{
		"payment_status":        enums.PaymentStatusEscrow,
		"escrow_transaction_id": freeze.ID,
		"updated_at":            now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark product escrow")
	}
	return freeze, nil
}

// Freeze runs FreezeTx in its own transaction.
func (s *Service) Freeze(ctx context.Context, payerID, payeeID uuid.UUID, amountCents int64, productID uuid.UUID) (*models.Transaction, error) {
	var freeze *models.Transaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		freeze, err = s.FreezeTx(ctx, tx, payerID, payeeID, amountCents, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveEscrow("freeze", freeze.AmountCents)
	return freeze, nil
}

// ReleaseTx pays a pending escrow out to the payee inside tx and marks the
// product delivered. ESCROW_NOT_FOUND means the hold is missing or already
// settled, which includes losing a race against RefundTx.
func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) (*models.Transaction, error) {
	repo := s.repo.WithTx(tx)
	escrow, err := s.claimEscrow(ctx, repo, escrowID, enums.TransactionStatusCompleted)
	if err != nil {
		return nil, err
	}
	if escrow.ToUserID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "escrow has no payee")
	}
	payeeID := *escrow.ToUserID
	now := *escrow.CompletedAt

	if err := s.drainPayer(ctx, repo, escrow, false); err != nil {
		return nil, err
	}
	if err := s.ensureWallet(ctx, repo, payeeID); err != nil {
		return nil, err
	}
	if _, err := repo.Credit(ctx, payeeID, escrow.AmountCents, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit payee")
	}
	if escrow.ProductID != nil {
		if err := repo.UpdateProductEscrow(ctx, *escrow.ProductID, map[string]any{
			"payment_status":    enums.PaymentStatusCompleted,
			"status":            enums.ProductStatusDelivered,
			"product_delivered": true,
			"delivered_at":      now,
			"updated_at":        now,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark product delivered")
		}
	}
	if err := s.appendAudit(ctx, repo, escrow, enums.TransactionRelease, payeeID); err != nil {
		return nil, err
	}
	return escrow, nil
}

// Release runs ReleaseTx in its own transaction.
func (s *Service) Release(ctx context.Context, escrowID uuid.UUID) (*models.Transaction, error) {
	var escrow *models.Transaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		escrow, err = s.ReleaseTx(ctx, tx, escrowID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveEscrow("release", escrow.AmountCents)
	return escrow, nil
}

// RefundTx returns a pending escrow to the payer inside tx and marks the
// product expired.
func (s *Service) RefundTx(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) (*models.Transaction, error) {
	repo := s.repo.WithTx(tx)
	escrow, err := s.claimEscrow(ctx, repo, escrowID, enums.TransactionStatusRefunded)
	if err != nil {
		return nil, err
	}
	now := *escrow.CompletedAt

	if err := s.drainPayer(ctx, repo, escrow, true); err != nil {
		return nil, err
	}
	if escrow.ProductID != nil {
		if err := repo.UpdateProductEscrow(ctx, *escrow.ProductID, map[string]any{
			"payment_status": enums.PaymentStatusRefunded,
			"status":         enums.ProductStatusExpired,
			"updated_at":     now,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark product expired")
		}
	}
	if err := s.appendAudit(ctx, repo, escrow, enums.TransactionRefund, escrow.FromUserID); err != nil {
		return nil, err
	}
	return escrow, nil
}

// Refund runs RefundTx in its own transaction.
func (s *Service) Refund(ctx context.Context, escrowID uuid.UUID) (*models.Transaction, error) {
	var escrow *models.Transaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		escrow, err = s.RefundTx(ctx, tx, escrowID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveEscrow("refund", escrow.AmountCents)
	return escrow, nil
}

// claimEscrow performs the pending->terminal transition and returns the
// settled row.
func (s *Service) claimEscrow(ctx context.Context, repo *Repository, escrowID uuid.UUID, to enums.TransactionStatus) (*models.Transaction, error) {
	if escrowID == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonEscrowNotFound, "escrow id required")
	}
	now := s.now()
	affected, err := repo.SettleEscrow(ctx, escrowID, to, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle escrow")
	}
	if affected == 0 {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonEscrowNotFound, "escrow not found or already settled")
	}
	escrow, err := repo.FindTransaction(ctx, escrowID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload escrow")
	}
	escrow.CompletedAt = &now
	return escrow, nil
}

func (s *Service) drainPayer(ctx context.Context, repo *Repository, escrow *models.Transaction, toBalance bool) error {
	affected, err := repo.DrainFrozen(ctx, escrow.FromUserID, escrow.AmountCents, toBalance, *escrow.CompletedAt)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drain frozen balance")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeInternal, "payer frozen balance does not cover escrow")
	}
	return nil
}

func (s *Service) appendAudit(ctx context.Context, repo *Repository, escrow *models.Transaction, kind enums.TransactionType, to uuid.UUID) error {
	audit := &models.Transaction{
		ID:          uuid.New(),
		Type:        kind,
		Status:      enums.TransactionStatusCompleted,
		AmountCents: escrow.AmountCents,
		Currency:    escrow.Currency,
		FromUserID:  escrow.FromUserID,
		ToUserID:    &to,
		ProductID:   escrow.ProductID,
		Metadata:    types.JSONMap{"escrow_transaction_id": escrow.ID.String()},
		CreatedAt:   *escrow.CompletedAt,
		CompletedAt: escrow.CompletedAt,
	}
	if err := repo.InsertTransaction(ctx, audit); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record "+string(kind))
	}
	return nil
}
