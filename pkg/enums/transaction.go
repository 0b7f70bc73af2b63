package enums

// TransactionType labels a wallet ledger entry.
type TransactionType string

const (
	TransactionDeposit TransactionType = "deposit"
	TransactionFreeze  TransactionType = "freeze"
	TransactionRelease TransactionType = "release"
	TransactionRefund  TransactionType = "refund"
)

var transactionTypes = newSet("transaction type",
	TransactionDeposit, TransactionFreeze, TransactionRelease, TransactionRefund)

func (t TransactionType) IsValid() bool { return transactionTypes.has(t) }

// TransactionStatus is pending only for escrow freezes; everything else is
// written completed.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

var transactionStatuses = newSet("transaction status",
	TransactionStatusPending, TransactionStatusCompleted, TransactionStatusRefunded)

func (s TransactionStatus) IsValid() bool { return transactionStatuses.has(s) }

// IsTerminal reports whether the transaction has settled.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusRefunded
}
