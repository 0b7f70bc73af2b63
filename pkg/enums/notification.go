package enums

// NotificationType maps to notifications.type.
type NotificationType string

const (
	NotificationNewProduct      NotificationType = "new_product"
	NotificationNewBid          NotificationType = "new_bid"
	NotificationOutbid          NotificationType = "outbid"
	NotificationPriceUpdate     NotificationType = "price_update"
	NotificationBidAccepted     NotificationType = "bid_accepted"
	NotificationBidRejected     NotificationType = "bid_rejected"
	NotificationPaymentReleased NotificationType = "payment_released"
	NotificationPaymentRefunded NotificationType = "payment_refunded"
	NotificationDeliveryExpired NotificationType = "delivery_expired"
	NotificationAuctionClosed   NotificationType = "auction_closed"
	NotificationChat            NotificationType = "chat"
	NotificationTest            NotificationType = "test"
)

var notificationTypes = newSet("notification type",
	NotificationNewProduct,
	NotificationNewBid,
	NotificationOutbid,
	NotificationPriceUpdate,
	NotificationBidAccepted,
	NotificationBidRejected,
	NotificationPaymentReleased,
	NotificationPaymentRefunded,
	NotificationDeliveryExpired,
	NotificationAuctionClosed,
	NotificationChat,
	NotificationTest,
)

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }

// FanOutOnRead reports whether the type is stored once per audience and
// resolved per viewer at query time. Every other type gets one row per
// recipient when it is written.
func (n NotificationType) FanOutOnRead() bool {
	return n == NotificationPriceUpdate
}
