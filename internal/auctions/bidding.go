package auctions

import (
	"context"

	"github.com/angelmondragon/farmbid-backend/internal/events"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxBidAttempts bounds retries after losing the version check to a
// concurrent bid. Each retry re-reads the lot, so the loser normally ends
// with BID_TOO_LOW.
const maxBidAttempts = 3

// PlaceBid records amountCents from bidderID as the new highest bid.
// A bid at exactly the end time is accepted; any later bid closes the lot.
func (s *Service) PlaceBid(ctx context.Context, productID, bidderID uuid.UUID, amountCents int64) (*BidResult, error) {
	if productID == uuid.Nil || bidderID == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "product and bidder are required")
	}
	if amountCents <= 0 {
		s.metrics.ObserveBid(string(pkgerrors.ReasonInvalidAmount))
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidAmount, "bid amount must be positive")
	}

	var (
		result *BidResult
		closed bool
		staged *events.Staged
		err    error
	)
	for attempt := 0; attempt < maxBidAttempts; attempt++ {
		staged = events.Stage(s.events)
		result, closed, err = s.tryPlaceBid(ctx, staged, productID, bidderID, amountCents)
		if !pkgerrors.HasReason(err, pkgerrors.ReasonConcurrentWrite) {
			break
		}
	}

	if closed {
		staged.Flush(ctx, s.logg)
		err = pkgerrors.NewReason(pkgerrors.ReasonAuctionClosed, "auction has ended")
	}
	if err != nil {
		if reason := reasonOf(err); reason != "" {
			s.metrics.ObserveBid(string(reason))
		}
		return nil, err
	}

	s.metrics.ObserveBid("accepted")
	staged.Flush(ctx, s.logg)
	return result, nil
}

// tryPlaceBid runs one bid attempt. closed reports that the attempt found
// the lot past its end time and closed it; the close is committed and staged.
func (s *Service) tryPlaceBid(ctx context.Context, staged *events.Staged, productID, bidderID uuid.UUID, amountCents int64) (result *BidResult, closed bool, err error) {
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindForUpdate(ctx, productID)
		if err != nil {
			return productLookupError(err)
		}
		if product.Status != enums.ProductStatusActive {
			return pkgerrors.NewReason(pkgerrors.ReasonAuctionClosed, "auction is no longer accepting bids")
		}

		now := s.now()
		if now.After(product.EndTime) {
			affected, err := repo.CloseIfEnded(ctx, product.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close ended auction")
			}
			if affected > 0 {
				product.Status = enums.ProductStatusClosed
				closed = true
				return s.stage(ctx, tx, staged, auctionClosedEvent(product))
			}
			return pkgerrors.NewReason(pkgerrors.ReasonAuctionClosed, "auction has ended")
		}

		if product.SellerID == bidderID {
			return pkgerrors.NewReason(pkgerrors.ReasonSelfBid, "sellers cannot bid on their own lot")
		}
		floor := product.StartingPriceCents
		if product.HasBid() {
			floor = *product.HighestBidCents
		}
		if amountCents <= floor {
			return pkgerrors.NewReason(pkgerrors.ReasonBidTooLow, "bid must exceed the current price").
				WithDetails(map[string]any{"current_cents": floor, "minimum_cents": floor + 1})
		}

		outbid, err := repo.DistinctBidders(ctx, productID, bidderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load previous bidders")
		}

		bid := models.Bid{
			ID:          uuid.New(),
			ProductID:   productID,
			BidderID:    bidderID,
			AmountCents: amountCents,
			CreatedAt:   now,
		}
		affected, err := repo.ApplyBid(ctx, productID, product.Version, &bid)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply bid")
		}
		if affected == 0 {
			return pkgerrors.NewReason(pkgerrors.ReasonConcurrentWrite, "lot changed while bidding, retry")
		}
		if err := repo.InsertBid(ctx, &bid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record bid")
		}

		product.HighestBidCents = &bid.AmountCents
		product.HighestBidderID = &bid.BidderID
		product.HighestBidAt = &bid.CreatedAt
		product.BidCount++
		product.Version++
		result = &BidResult{Product: *product, Bid: bid, OutbidUserIDs: outbid}
		return s.stage(ctx, tx, staged, outbox.DomainEvent{
			EventType:     enums.EventBidPlaced,
			AggregateType: enums.AggregateProduct,
			AggregateID:   productID,
			Actor:         outbox.Actor(bidderID, enums.RoleMerchant),
			Data: payloads.BidPlacedEvent{
				ProductID:     productID,
				SellerID:      product.SellerID,
				BidderID:      bidderID,
				ProductName:   product.Name,
				AmountCents:   amountCents,
				BidCount:      product.BidCount,
				OutbidUserIDs: outbid,
				PlacedAt:      bid.CreatedAt,
			},
		})
	})
	if err != nil {
		return nil, false, err
	}
	return result, closed, nil
}

// RespondToBid lets the seller accept or reject the standing bid. Accepting
// freezes the winner's funds in the same transaction; if the freeze fails
// nothing changes.
func (s *Service) RespondToBid(ctx context.Context, productID, sellerID uuid.UUID, accept bool) (*models.Product, error) {
	var (
		product *models.Product
		escrow  *models.Transaction
	)
	staged := events.Stage(s.events)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		p, err := repo.FindForUpdate(ctx, productID)
		if err != nil {
			return productLookupError(err)
		}
		if !p.HasBid() {
			return pkgerrors.NewReason(pkgerrors.ReasonNoBidToRespond, "there is no bid to respond to")
		}
		if p.SellerID != sellerID {
			return pkgerrors.NewReason(pkgerrors.ReasonNotOwner, "only the seller can respond to bids")
		}
		if (p.Status != enums.ProductStatusActive && p.Status != enums.ProductStatusClosed) || p.BidAccepted {
			return pkgerrors.NewReason(pkgerrors.ReasonNotRespondable, "lot has already been sold").
				WithDetails(map[string]any{"status": p.Status})
		}

		now := s.now()
		if accept {
			escrow, err = s.ledger.FreezeTx(ctx, tx, *p.HighestBidderID, p.SellerID, *p.HighestBidCents, p.ID)
			if err != nil {
				return err
			}
		}
		if err := repo.RecordResponse(ctx, p.ID, accept, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record response")
		}
		product, err = repo.Find(ctx, p.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}
		return s.stage(ctx, tx, staged, decisionEvent(product, sellerID, escrow, accept))
	})
	if err != nil {
		return nil, err
	}
	if accept {
		s.ledger.ObserveSettled("freeze", escrow)
	}
	staged.Flush(ctx, s.logg)
	return product, nil
}

func decisionEvent(product *models.Product, sellerID uuid.UUID, escrow *models.Transaction, accept bool) outbox.DomainEvent {
	decision := payloads.BidDecisionEvent{
		ProductID:   product.ID,
		SellerID:    product.SellerID,
		BidderID:    *product.HighestBidderID,
		ProductName: product.Name,
		AmountCents: *product.HighestBidCents,
		Accepted:    accept,
	}
	eventType := enums.EventBidRejected
	if accept {
		eventType = enums.EventBidAccepted
		decision.EscrowTransactionID = &escrow.ID
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateProduct,
		AggregateID:   product.ID,
		Actor:         outbox.Actor(sellerID, enums.RoleFarmer),
		Data:          decision,
	}
}

func auctionClosedEvent(product *models.Product) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventAuctionClosed,
		AggregateType: enums.AggregateProduct,
		AggregateID:   product.ID,
		Data: payloads.AuctionClosedEvent{
			ProductID:       product.ID,
			SellerID:        product.SellerID,
			ProductName:     product.Name,
			HighestBidCents: product.HighestBidCents,
			HighestBidderID: product.HighestBidderID,
		},
	}
}

func reasonOf(err error) pkgerrors.Reason {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Reason()
	}
	return ""
}
