package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestFanout(t *testing.T, env *testEnv) *Fanout {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{MarketTopic: "market-topic"})
	require.NoError(t, err)
	fanout, err := NewFanout(FanoutParams{Notifications: env.svc, Decoder: reg, Feeds: env.feeds})
	require.NoError(t, err)
	return fanout
}

func handle(t *testing.T, f *Fanout, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data any) error {
	t.Helper()
	envelope, err := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Data:          data,
	}.Envelope()
	require.NoError(t, err)
	return f.Handle(context.Background(), eventType, envelope)
}

func listFor(t *testing.T, env *testEnv, userID uuid.UUID, role enums.Role) []Item {
	t.Helper()
	res, err := env.svc.List(context.Background(), ListParams{UserID: userID, Role: role})
	require.NoError(t, err)
	return res.Items
}

func TestFanoutProductListedReachesMerchants(t *testing.T) {
	env := newTestEnv(t)
	fanout := newTestFanout(t, env)
	seller := env.user(t, enums.RoleFarmer)
	m1 := env.user(t, enums.RoleMerchant)
	m2 := env.user(t, enums.RoleMerchant)
	productID := uuid.New()

	require.NoError(t, handle(t, fanout, enums.EventProductListed, enums.AggregateProduct, payloads.ProductListedEvent{
		ProductID: productID,
		SellerID:  seller,
		Name:      "Tomatoes",
	}))

	for _, m := range []uuid.UUID{m1, m2} {
		items := listFor(t, env, m, enums.RoleMerchant)
		require.Len(t, items, 1)
		require.Equal(t, enums.NotificationNewProduct, items[0].Type)
		require.Equal(t, "New Product Available", items[0].Title)
		require.Equal(t, `A new product "Tomatoes" is available for bidding!`, items[0].Message)
		require.Equal(t, productID, *items[0].ProductID)
	}
	require.Empty(t, listFor(t, env, seller, enums.RoleFarmer))
}

func TestFanoutBidPlaced(t *testing.T) {
	env := newTestEnv(t)
	fanout := newTestFanout(t, env)
	seller := env.user(t, enums.RoleFarmer)
	m1 := env.user(t, enums.RoleMerchant)
	m2 := env.user(t, enums.RoleMerchant)
	productID := uuid.New()

	require.NoError(t, handle(t, fanout, enums.EventBidPlaced, enums.AggregateProduct, payloads.BidPlacedEvent{
		ProductID:     productID,
		SellerID:      seller,
		BidderID:      m2,
		ProductName:   "Tomatoes",
		AmountCents:   20000,
		BidCount:      2,
		OutbidUserIDs: []uuid.UUID{m1},
	}))

	sellerItems := listFor(t, env, seller, enums.RoleFarmer)
	require.Len(t, sellerItems, 1)
	require.Equal(t, enums.NotificationNewBid, sellerItems[0].Type)
	require.Equal(t, `You received a new bid of ₹200 on your product "Tomatoes"`, sellerItems[0].Message)

	m1Items := listFor(t, env, m1, enums.RoleMerchant)
	require.Len(t, m1Items, 2)
	types := []enums.NotificationType{m1Items[0].Type, m1Items[1].Type}
	require.ElementsMatch(t, []enums.NotificationType{enums.NotificationOutbid, enums.NotificationPriceUpdate}, types)

	require.Empty(t, listFor(t, env, m2, enums.RoleMerchant), "the bidder is told nothing")

	var productFeeds int
	for _, topic := range env.feeds.topics() {
		if topic.Kind == "product" {
			productFeeds++
		}
	}
	require.Equal(t, 1, productFeeds)
}

func TestFanoutDecisionsAndSettlement(t *testing.T) {
	env := newTestEnv(t)
	fanout := newTestFanout(t, env)
	seller := env.user(t, enums.RoleFarmer)
	bidder := env.user(t, enums.RoleMerchant)
	productID := uuid.New()

	require.NoError(t, handle(t, fanout, enums.EventBidAccepted, enums.AggregateProduct, payloads.BidDecisionEvent{
		ProductID: productID, SellerID: seller, BidderID: bidder, ProductName: "Rice", AmountCents: 150000, Accepted: true,
	}))
	require.NoError(t, handle(t, fanout, enums.EventPaymentReleased, enums.AggregateEscrow, payloads.PaymentSettledEvent{
		ProductID: productID, EscrowTransactionID: uuid.New(), PayerID: bidder, PayeeID: seller,
		ProductName: "Rice", AmountCents: 150000, Outcome: enums.TransactionStatusCompleted,
	}))

	bidderItems := listFor(t, env, bidder, enums.RoleMerchant)
	require.Len(t, bidderItems, 1)
	require.Equal(t, `Your bid of ₹1500 for "Rice" has been accepted!`, bidderItems[0].Message)

	sellerItems := listFor(t, env, seller, enums.RoleFarmer)
	require.Len(t, sellerItems, 1)
	require.Equal(t, enums.NotificationPaymentReleased, sellerItems[0].Type)
	require.Equal(t, `Payment of ₹1500 for "Rice" has been released to you!`, sellerItems[0].Message)
}

func TestFanoutRefundNotifiesBothParties(t *testing.T) {
	env := newTestEnv(t)
	fanout := newTestFanout(t, env)
	seller := env.user(t, enums.RoleFarmer)
	bidder := env.user(t, enums.RoleMerchant)

	require.NoError(t, handle(t, fanout, enums.EventPaymentRefunded, enums.AggregateEscrow, payloads.PaymentSettledEvent{
		ProductID: uuid.New(), EscrowTransactionID: uuid.New(), PayerID: bidder, PayeeID: seller,
		ProductName: "Rice", AmountCents: 5000, Outcome: enums.TransactionStatusRefunded,
	}))

	bidderItems := listFor(t, env, bidder, enums.RoleMerchant)
	require.Len(t, bidderItems, 1)
	require.Equal(t, enums.NotificationPaymentRefunded, bidderItems[0].Type)
	require.Equal(t, `Your payment for "Rice" has been refunded due to delivery deadline expiry.`, bidderItems[0].Message)

	sellerItems := listFor(t, env, seller, enums.RoleFarmer)
	require.Len(t, sellerItems, 1)
	require.Equal(t, enums.NotificationDeliveryExpired, sellerItems[0].Type)
	require.Nil(t, sellerItems[0].OriginatorID)
}

func TestFanoutNotificationRequested(t *testing.T) {
	env := newTestEnv(t)
	fanout := newTestFanout(t, env)
	farmer := env.user(t, enums.RoleFarmer)

	require.NoError(t, handle(t, fanout, enums.EventNotificationRequested, enums.AggregateNotification, payloads.NotificationRequestedEvent{
		RecipientID: &farmer,
		Type:        enums.NotificationTest,
		Title:       "Test",
		Message:     "hello",
	}))
	items := listFor(t, env, farmer, enums.RoleFarmer)
	require.Len(t, items, 1)
	require.Equal(t, "hello", items[0].Message)
}

func TestFanoutRejectsMissingPayload(t *testing.T) {
	env := newTestEnv(t)
	fanout := newTestFanout(t, env)
	err := fanout.Handle(context.Background(), enums.EventBidPlaced, outbox.PayloadEnvelope{EventID: uuid.NewString()})
	var nonRetryable registry.NonRetryableError
	require.True(t, errors.As(err, &nonRetryable), "got %v", err)
}
