package errors

import "fmt"

// Reason narrows a Code down to the marketplace rule that was violated. Codes
// drive the HTTP mapping; reasons are what clients and tests branch on.
type Reason string

const (
	ReasonInvalidAmount Reason = "INVALID_AMOUNT"
	ReasonInvalidInput  Reason = "INVALID_INPUT"
	ReasonSelfBid       Reason = "SELF_BID"

	ReasonProductNotFound      Reason = "PRODUCT_NOT_FOUND"
	ReasonWalletNotFound       Reason = "WALLET_NOT_FOUND"
	ReasonNotificationNotFound Reason = "NOTIFICATION_NOT_FOUND"
	ReasonUserNotFound         Reason = "USER_NOT_FOUND"
	ReasonInsufficientFunds    Reason = "INSUFFICIENT_FUNDS"

	ReasonAuctionClosed   Reason = "AUCTION_CLOSED"
	ReasonBidTooLow       Reason = "BID_TOO_LOW"
	ReasonNoBidToRespond  Reason = "NO_BID_TO_RESPOND"
	ReasonNotRespondable  Reason = "NOT_RESPONDABLE"
	ReasonNotOwner        Reason = "NOT_OWNER"
	ReasonNotWinner       Reason = "NOT_WINNER"
	ReasonNotDeliverable  Reason = "NOT_DELIVERABLE"
	ReasonEscrowNotFound  Reason = "ESCROW_NOT_FOUND"
	ReasonAlreadyRated    Reason = "ALREADY_RATED"
	ReasonNotSettled      Reason = "NOT_SETTLED"
	ReasonNotParticipant  Reason = "NOT_PARTICIPANT"
	ReasonConcurrentWrite Reason = "CONCURRENT_WRITE"
)

var codeByReason = map[Reason]Code{
	ReasonInvalidAmount: CodeValidation,
	ReasonInvalidInput:  CodeValidation,
	ReasonSelfBid:       CodeValidation,

	ReasonProductNotFound:      CodeNotFound,
	ReasonWalletNotFound:       CodeNotFound,
	ReasonNotificationNotFound: CodeNotFound,
	ReasonUserNotFound:         CodeNotFound,
	ReasonInsufficientFunds:    CodeInsufficient,

	ReasonAuctionClosed:   CodeStateConflict,
	ReasonBidTooLow:       CodeStateConflict,
	ReasonNoBidToRespond:  CodeStateConflict,
	ReasonNotRespondable:  CodeStateConflict,
	ReasonNotOwner:        CodeStateConflict,
	ReasonNotWinner:       CodeStateConflict,
	ReasonNotDeliverable:  CodeStateConflict,
	ReasonEscrowNotFound:  CodeStateConflict,
	ReasonAlreadyRated:    CodeStateConflict,
	ReasonNotSettled:      CodeStateConflict,
	ReasonNotParticipant:  CodeStateConflict,
	ReasonConcurrentWrite: CodeConflict,
}

// CodeForReason returns the transport code a reason maps to.
func CodeForReason(reason Reason) Code {
	if code, ok := codeByReason[reason]; ok {
		return code
	}
	return CodeInternal
}

// NewReason builds an error whose code is derived from reason.
func NewReason(reason Reason, message string) *Error {
	return New(CodeForReason(reason), message).WithReason(reason)
}

// NewReasonf is NewReason with a formatted message.
func NewReasonf(reason Reason, format string, args ...any) *Error {
	return NewReason(reason, fmt.Sprintf(format, args...))
}

// HasReason reports whether err carries the given reason anywhere in its chain.
func HasReason(err error, reason Reason) bool {
	typed := As(err)
	return typed != nil && typed.Reason() == reason
}
