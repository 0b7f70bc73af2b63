// Package delivery settles sold lots once the winning merchant confirms
// receipt.
package delivery

import (
	"context"
	"time"

	"github.com/angelmondragon/farmbid-backend/internal/events"
	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EscrowReleaser pays a held escrow out inside a caller-owned transaction.
type EscrowReleaser interface {
	ReleaseTx(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) (*models.Transaction, error)
	ObserveSettled(stage string, escrow *models.Transaction)
}

// Service coordinates delivery confirmation with escrow release.
type Service struct {
	db     txRunner
	repo   *Repository
	ledger EscrowReleaser
	events events.Emitter
	window time.Duration
	logg   *logger.Logger
}

type ServiceParams struct {
	DB     txRunner
	Repo   *Repository
	Ledger EscrowReleaser
	Events events.Emitter
	// Window is how long a merchant has to confirm after acceptance.
	Window time.Duration
	Logger *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db client required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "delivery repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "escrow releaser required")
	}
	emitter := params.Events
	if emitter == nil {
		emitter = events.Nop{}
	}
	window := params.Window
	if window <= 0 {
		window = 48 * time.Hour
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:     params.DB,
		repo:   params.Repo,
		ledger: params.Ledger,
		events: emitter,
		window: window,
		logg:   logg,
	}, nil
}

// ConfirmDelivery releases the escrow on productID to the seller. Only the
// winning merchant may confirm, and only while the lot is accepted and not
// yet delivered. A lot already refunded by the deadline sweep fails with
// ESCROW_NOT_FOUND.
func (s *Service) ConfirmDelivery(ctx context.Context, productID, confirmerID uuid.UUID) (*models.Product, error) {
	var (
		product *models.Product
		escrow  *models.Transaction
	)
	staged := events.Stage(s.events)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.FindForUpdate(ctx, productID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.NewReason(pkgerrors.ReasonProductNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !p.IsHighestBidder(confirmerID) {
			return pkgerrors.NewReason(pkgerrors.ReasonNotWinner, "only the winning bidder can confirm delivery")
		}
		if !p.BidAccepted || p.ProductDelivered {
			return pkgerrors.NewReason(pkgerrors.ReasonNotDeliverable, "product is not awaiting delivery")
		}
		if p.EscrowTransactionID == nil {
			return pkgerrors.NewReason(pkgerrors.ReasonEscrowNotFound, "product has no escrow")
		}

		escrow, err = s.ledger.ReleaseTx(ctx, tx, *p.EscrowTransactionID)
		if err != nil {
			return err
		}
		product, err = repo.Find(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}
		err = staged.Add(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentReleased,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   escrow.ID,
			Actor:         outbox.Actor(confirmerID, enums.RoleMerchant),
			Data: payloads.PaymentSettledEvent{
				ProductID:           product.ID,
				EscrowTransactionID: escrow.ID,
				PayerID:             escrow.FromUserID,
				PayeeID:             product.SellerID,
				ProductName:         product.Name,
				AmountCents:         escrow.AmountCents,
				Outcome:             escrow.Status,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stage payment_released")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.ObserveSettled("release", escrow)
	staged.Flush(ctx, s.logg)
	return product, nil
}

// Awaiting is a lot the merchant still has to confirm, with its deadline.
type Awaiting struct {
	Product  models.Product
	Deadline time.Time
}

// PendingFor lists lots won by merchantID that still await confirmation.
func (s *Service) PendingFor(ctx context.Context, merchantID uuid.UUID) ([]Awaiting, error) {
	rows, err := s.repo.Pending(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending deliveries")
	}
	out := make([]Awaiting, 0, len(rows))
	for _, row := range rows {
		item := Awaiting{Product: row}
		if row.BidRespondedAt != nil {
			item.Deadline = row.BidRespondedAt.Add(s.window)
		}
		out = append(out, item)
	}
	return out, nil
}
