package enums

// PaymentStatus mirrors the escrow state on a product. It moves
// none -> escrow -> completed|refunded and never back.
type PaymentStatus string

const (
	PaymentStatusNone      PaymentStatus = "none"
	PaymentStatusEscrow    PaymentStatus = "escrow"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

var paymentStatuses = newSet("payment status",
	PaymentStatusNone, PaymentStatusEscrow, PaymentStatusCompleted, PaymentStatusRefunded)

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

