package notifications

import (
	"context"
	"fmt"

	"github.com/angelmondragon/farmbid-backend/internal/feeds"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/money"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Product feed event types.
const (
	FeedEventPriceUpdate = "price_update"
	FeedEventStatus      = "status"
)

// PayloadDecoder turns an envelope into its typed payload.
// registry.EventRegistry implements it.
type PayloadDecoder interface {
	DecodePayload(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (interface{}, error)
}

// Fanout turns marketplace events into notifications and live feed updates.
type Fanout struct {
	notifications Service
	decoder       PayloadDecoder
	feeds         FeedPublisher
	logg          *logger.Logger
}

type FanoutParams struct {
	Notifications Service
	Decoder       PayloadDecoder
	Feeds         FeedPublisher
	Logger        *logger.Logger
}

func NewFanout(params FanoutParams) (*Fanout, error) {
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications service required")
	}
	if params.Decoder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payload decoder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Fanout{
		notifications: params.Notifications,
		decoder:       params.Decoder,
		feeds:         params.Feeds,
		logg:          logg,
	}, nil
}

// Handle processes one event. Decode failures are returned unchanged so a
// consumer can tell them apart from write failures.
func (f *Fanout) Handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	payload, err := f.decoder.DecodePayload(eventType, envelope)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *payloads.ProductListedEvent:
		return f.productListed(ctx, p)
	case *payloads.BidPlacedEvent:
		return f.bidPlaced(ctx, p)
	case *payloads.BidDecisionEvent:
		return f.bidDecision(ctx, p)
	case *payloads.AuctionClosedEvent:
		return f.auctionClosed(ctx, p)
	case *payloads.PaymentSettledEvent:
		if eventType == enums.EventPaymentRefunded {
			return f.paymentRefunded(ctx, p)
		}
		return f.paymentReleased(ctx, p)
	case *payloads.NotificationRequestedEvent:
		to := Recipients{Role: p.RecipientRole}
		if p.RecipientID != nil {
			to.UserIDs = []uuid.UUID{*p.RecipientID}
		}
		_, err := f.notifications.Notify(ctx, to, Payload{
			Type:         p.Type,
			Title:        p.Title,
			Message:      p.Message,
			ProductID:    p.ProductID,
			OriginatorID: p.OriginatorID,
		})
		return err
	default:
		f.logg.Info(f.logg.WithField(ctx, "event_type", string(eventType)), "no notifications for event")
		return nil
	}
}

func (f *Fanout) productListed(ctx context.Context, p *payloads.ProductListedEvent) error {
	merchants := enums.RoleMerchant
	_, err := f.notifications.Notify(ctx, Recipients{Role: &merchants}, Payload{
		Type:         enums.NotificationNewProduct,
		Title:        "New Product Available",
		Message:      fmt.Sprintf("A new product \"%s\" is available for bidding!", p.Name),
		ProductID:    uuidPtr(p.ProductID),
		OriginatorID: uuidPtr(p.SellerID),
	})
	return err
}

func (f *Fanout) bidPlaced(ctx context.Context, p *payloads.BidPlacedEvent) error {
	amount := money.Display(p.AmountCents)
	productID := uuidPtr(p.ProductID)
	bidder := uuidPtr(p.BidderID)

	var errs error
	_, err := f.notifications.Notify(ctx, Recipients{UserIDs: []uuid.UUID{p.SellerID}}, Payload{
		Type:         enums.NotificationNewBid,
		Title:        "New Bid Received",
		Message:      fmt.Sprintf("You received a new bid of %s on your product \"%s\"", amount, p.ProductName),
		ProductID:    productID,
		OriginatorID: bidder,
	})
	errs = multierr.Append(errs, err)

	if len(p.OutbidUserIDs) > 0 {
		_, err = f.notifications.Notify(ctx, Recipients{UserIDs: p.OutbidUserIDs}, Payload{
			Type:         enums.NotificationOutbid,
			Title:        "Product Outbid",
			Message:      fmt.Sprintf("Someone placed a higher bid (%s) on \"%s\"", amount, p.ProductName),
			ProductID:    productID,
			OriginatorID: bidder,
		})
		errs = multierr.Append(errs, err)
	}

	merchants := enums.RoleMerchant
	_, err = f.notifications.Notify(ctx, Recipients{Role: &merchants}, Payload{
		Type:         enums.NotificationPriceUpdate,
		Title:        "Price Update",
		Message:      fmt.Sprintf("The highest bid on \"%s\" is now %s", p.ProductName, amount),
		ProductID:    productID,
		OriginatorID: bidder,
	})
	errs = multierr.Append(errs, err)

	f.publishProduct(ctx, p.ProductID, FeedEventPriceUpdate, map[string]any{
		"highest_bid_cents": p.AmountCents,
		"highest_bidder_id": p.BidderID,
		"bid_count":         p.BidCount,
		"placed_at":         p.PlacedAt,
	})
	return errs
}

func (f *Fanout) bidDecision(ctx context.Context, p *payloads.BidDecisionEvent) error {
	payload := Payload{
		Type:         enums.NotificationBidRejected,
		Title:        "Bid Rejected",
		Message:      fmt.Sprintf("Your bid for \"%s\" was not accepted.", p.ProductName),
		ProductID:    uuidPtr(p.ProductID),
		OriginatorID: uuidPtr(p.SellerID),
	}
	status := "bid_rejected"
	if p.Accepted {
		payload.Type = enums.NotificationBidAccepted
		payload.Title = "Bid Accepted"
		payload.Message = fmt.Sprintf("Your bid of %s for \"%s\" has been accepted!", money.Display(p.AmountCents), p.ProductName)
		status = string(enums.ProductStatusSold)
	}
	_, err := f.notifications.Notify(ctx, Recipients{UserIDs: []uuid.UUID{p.BidderID}}, payload)
	f.publishProduct(ctx, p.ProductID, FeedEventStatus, map[string]any{"status": status})
	return err
}

func (f *Fanout) auctionClosed(ctx context.Context, p *payloads.AuctionClosedEvent) error {
	message := fmt.Sprintf("Bidding on \"%s\" has ended without any bids.", p.ProductName)
	if p.HighestBidCents != nil {
		message = fmt.Sprintf("Bidding on \"%s\" has ended with a highest bid of %s.", p.ProductName, money.Display(*p.HighestBidCents))
	}
	_, err := f.notifications.Notify(ctx, Recipients{UserIDs: []uuid.UUID{p.SellerID}}, Payload{
		Type:      enums.NotificationAuctionClosed,
		Title:     "Auction Closed",
		Message:   message,
		ProductID: uuidPtr(p.ProductID),
	})
	f.publishProduct(ctx, p.ProductID, FeedEventStatus, map[string]any{"status": string(enums.ProductStatusClosed)})
	return err
}

func (f *Fanout) paymentReleased(ctx context.Context, p *payloads.PaymentSettledEvent) error {
	_, err := f.notifications.Notify(ctx, Recipients{UserIDs: []uuid.UUID{p.PayeeID}}, Payload{
		Type:         enums.NotificationPaymentReleased,
		Title:        "Payment Released",
		Message:      fmt.Sprintf("Payment of %s for \"%s\" has been released to you!", money.Display(p.AmountCents), p.ProductName),
		ProductID:    uuidPtr(p.ProductID),
		OriginatorID: uuidPtr(p.PayerID),
	})
	f.publishProduct(ctx, p.ProductID, FeedEventStatus, map[string]any{"status": string(enums.ProductStatusDelivered)})
	return err
}

func (f *Fanout) paymentRefunded(ctx context.Context, p *payloads.PaymentSettledEvent) error {
	productID := uuidPtr(p.ProductID)
	var errs error
	_, err := f.notifications.Notify(ctx, Recipients{UserIDs: []uuid.UUID{p.PayerID}}, Payload{
		Type:      enums.NotificationPaymentRefunded,
		Title:     "Payment Refunded",
		Message:   fmt.Sprintf("Your payment for \"%s\" has been refunded due to delivery deadline expiry.", p.ProductName),
		ProductID: productID,
	})
	errs = multierr.Append(errs, err)

	_, err = f.notifications.Notify(ctx, Recipients{UserIDs: []uuid.UUID{p.PayeeID}}, Payload{
		Type:      enums.NotificationDeliveryExpired,
		Title:     "Delivery Deadline Missed",
		Message:   fmt.Sprintf("The delivery deadline for \"%s\" has expired. Payment was refunded to buyer.", p.ProductName),
		ProductID: productID,
	})
	errs = multierr.Append(errs, err)

	f.publishProduct(ctx, p.ProductID, FeedEventStatus, map[string]any{"status": string(enums.ProductStatusExpired)})
	return errs
}

func (f *Fanout) publishProduct(ctx context.Context, productID uuid.UUID, eventType string, data any) {
	if f.feeds == nil || productID == uuid.Nil {
		return
	}
	if err := f.feeds.Publish(ctx, feeds.ProductTopic(productID), eventType, uuidPtr(productID), data); err != nil {
		f.logg.Warn(f.logg.WithProductID(ctx, productID.String()), "product feed publish failed: "+err.Error())
	}
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
