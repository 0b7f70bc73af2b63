package wallet

import (
	"context"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
	"github.com/angelmondragon/farmbid-backend/pkg/pagination"
	"github.com/angelmondragon/farmbid-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the escrow wallet ledger. Every balance change happens inside a
// DB transaction together with the ledger row that explains it.
type Service struct {
	db       txRunner
	repo     *Repository
	currency string
	metrics  *metrics.MarketMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// ServiceParams wires the ledger dependencies.
type ServiceParams struct {
	DB       txRunner
	Repo     *Repository
	Currency string
	Metrics  *metrics.MarketMetrics
	Logger   *logger.Logger
	Clock    func() time.Time
}

// NewService validates params and builds the ledger.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db client required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet repository required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "INR"
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:       params.DB,
		repo:     params.Repo,
		currency: currency,
		metrics:  params.Metrics,
		logg:     logg,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// InitializeWallet creates a zero wallet if none exists and returns it.
func (s *Service) InitializeWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "user id required")
	}
	if err := s.ensureWallet(ctx, s.repo, userID); err != nil {
		return nil, err
	}
	return s.GetWallet(ctx, userID)
}

func (s *Service) ensureWallet(ctx context.Context, repo *Repository, userID uuid.UUID) error {
	now := s.now()
	wallet := &models.Wallet{
		UserID:    userID,
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateIfMissing(ctx, wallet); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initialize wallet")
	}
	return nil
}

// GetWallet returns the wallet or WALLET_NOT_FOUND.
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.Find(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.NewReason(pkgerrors.ReasonWalletNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

// Deposit credits amount to the user's spendable balance, creating the
// wallet on first use, and records a completed deposit row.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amountCents int64) (*models.Transaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "user id required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidAmount, "deposit amount must be positive")
	}

	var deposit *models.Transaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.ensureWallet(ctx, repo, userID); err != nil {
			return err
		}
		now := s.now()
		if _, err := repo.Credit(ctx, userID, amountCents, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
		}
		deposit = &models.Transaction{
			ID:          uuid.New(),
			Type:        enums.TransactionDeposit,
			Status:      enums.TransactionStatusCompleted,
			AmountCents: amountCents,
			Currency:    s.currency,
			FromUserID:  userID,
			ToUserID:    &userID,
			Metadata:    types.JSONMap{},
			CreatedAt:   now,
			CompletedAt: &now,
		}
		if err := repo.InsertTransaction(ctx, deposit); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record deposit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

// ListTransactionsParams configures ledger history pagination.
type ListTransactionsParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor string
}

// TransactionPage is one page of ledger history.
type TransactionPage struct {
	Items  []models.Transaction `json:"items"`
	Cursor string               `json:"cursor"`
}

// ListTransactions returns the user's ledger history, newest first.
func (s *Service) ListTransactions(ctx context.Context, params ListTransactionsParams) (*TransactionPage, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "user id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").WithReason(pkgerrors.ReasonInvalidInput)
	}
	rows, next, err := s.repo.ListTransactions(ctx, listTransactionsParams{
		UserID: params.UserID,
		Limit:  params.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return &TransactionPage{Items: rows, Cursor: pagination.EncodeNext(next)}, nil
}

// ObserveSettled records metrics for an escrow settled inside a caller-owned
// transaction, once that transaction has committed.
func (s *Service) ObserveSettled(stage string, escrow *models.Transaction) {
	if escrow == nil {
		return
	}
	s.metrics.ObserveEscrow(stage, escrow.AmountCents)
}
