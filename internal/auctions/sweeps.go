package auctions

import (
	"context"
	"time"

	"github.com/angelmondragon/farmbid-backend/internal/events"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// SweepExpiredDeliveries refunds every sold lot whose delivery window has
// elapsed without confirmation and returns the refunded product ids. Each
// lot settles in its own transaction; lots already settled by another path
// are skipped. Failures are collected and returned after the pass.
func (s *Service) SweepExpiredDeliveries(ctx context.Context) ([]uuid.UUID, error) {
	cutoff := s.now().Add(-s.market.DeliveryWindow)
	ids, err := s.repo.OverdueDeliveryIDs(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue deliveries")
	}

	var (
		processed []uuid.UUID
		errs      error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		staged := events.Stage(s.events)
		escrow, err := s.refundOverdue(ctx, staged, id, cutoff)
		if err != nil {
			logCtx := s.logg.WithProductID(ctx, id.String())
			s.logg.Error(logCtx, "refund overdue delivery", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if escrow == nil {
			continue
		}
		processed = append(processed, id)
		s.ledger.ObserveSettled("refund", escrow)
		staged.Flush(ctx, s.logg)
	}
	return processed, errs
}

// refundOverdue returns a nil escrow when the lot no longer qualifies. The
// payment_refunded event is staged in the refund's transaction.
func (s *Service) refundOverdue(ctx context.Context, staged *events.Staged, productID uuid.UUID, cutoff time.Time) (*models.Transaction, error) {
	var escrow *models.Transaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		p, err := s.repo.WithTx(tx).FindForUpdate(ctx, productID)
		if err != nil {
			return productLookupError(err)
		}
		if p.Status != enums.ProductStatusSold || !p.BidAccepted || p.ProductDelivered ||
			p.EscrowTransactionID == nil || p.BidRespondedAt == nil || !p.BidRespondedAt.Before(cutoff) {
			return nil
		}
		settled, err := s.ledger.RefundTx(ctx, tx, *p.EscrowTransactionID)
		if err != nil {
			if pkgerrors.HasReason(err, pkgerrors.ReasonEscrowNotFound) {
				return nil
			}
			return err
		}
		escrow = settled
		return s.stage(ctx, tx, staged, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   settled.ID,
			Data:          settledPayload(p, settled),
		})
	})
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

// CloseEndedAuctions moves active lots past their end time to closed and
// returns their ids.
func (s *Service) CloseEndedAuctions(ctx context.Context) ([]uuid.UUID, error) {
	now := s.now()
	ids, err := s.repo.EndedActiveIDs(ctx, now, sweepBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ended auctions")
	}

	var (
		closed []uuid.UUID
		errs   error
	)
	for _, id := range ids {
		staged := events.Stage(s.events)
		var affected int64
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			n, err := repo.CloseIfEnded(ctx, id, now)
			if err != nil || n == 0 {
				return err
			}
			affected = n
			product, err := repo.Find(ctx, id)
			if err != nil {
				return err
			}
			return staged.Add(ctx, tx, auctionClosedEvent(product))
		})
		if err != nil {
			errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close auction "+id.String()))
			continue
		}
		if affected == 0 {
			continue
		}
		closed = append(closed, id)
		staged.Flush(ctx, s.logg)
	}
	return closed, errs
}

func settledPayload(product *models.Product, escrow *models.Transaction) payloads.PaymentSettledEvent {
	payload := payloads.PaymentSettledEvent{
		EscrowTransactionID: escrow.ID,
		PayerID:             escrow.FromUserID,
		AmountCents:         escrow.AmountCents,
		Outcome:             escrow.Status,
	}
	if escrow.ToUserID != nil {
		payload.PayeeID = *escrow.ToUserID
	}
	if product != nil {
		payload.ProductID = product.ID
		payload.ProductName = product.Name
	}
	return payload
}
