package enums

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateProduct      OutboxAggregateType = "product"
	AggregateEscrow       OutboxAggregateType = "escrow"
	AggregateNotification OutboxAggregateType = "notification"
)

var aggregateTypes = newSet("aggregate type", AggregateProduct, AggregateEscrow, AggregateNotification)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType names a marketplace event. The value doubles as the
// event_type message attribute on the bus.
type OutboxEventType string

const (
	EventProductListed         OutboxEventType = "product_listed"
	EventBidPlaced             OutboxEventType = "bid_placed"
	EventBidAccepted           OutboxEventType = "bid_accepted"
	EventBidRejected           OutboxEventType = "bid_rejected"
	EventAuctionClosed         OutboxEventType = "auction_closed"
	EventPaymentReleased       OutboxEventType = "payment_released"
	EventPaymentRefunded       OutboxEventType = "payment_refunded"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var eventTypes = newSet("event type",
	EventProductListed,
	EventBidPlaced,
	EventBidAccepted,
	EventBidRejected,
	EventAuctionClosed,
	EventPaymentReleased,
	EventPaymentRefunded,
	EventNotificationRequested,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value)
}

// OutboxDLQErrorReason explains why a row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)

var dlqReasons = newSet("dlq reason", OutboxDLQReasonNonRetryable, OutboxDLQReasonMaxAttempts)

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
