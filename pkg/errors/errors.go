// Package errors carries the typed errors that cross service boundaries.
// A Code picks the HTTP status, a Reason names the marketplace rule that was
// broken, and everything else stays in the wrapped cause for the logs.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInsufficient  Code = "INSUFFICIENT_FUNDS"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is the client-facing treatment of a Code.
type Metadata struct {
	HTTPStatus    int
	PublicMessage string
	// Retryable tells clients the same request may succeed later.
	Retryable bool
	// DetailsAllowed lets Error.Details reach the response body.
	DetailsAllowed bool
	// ExposeMessage replaces PublicMessage with Error.Message. Off for codes
	// whose messages may quote internals.
	ExposeMessage bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	details
	exposed
)

func describe(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&details != 0,
		ExposeMessage:  traits&exposed != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    describe(http.StatusBadRequest, "validation failed", details|exposed),
	CodeUnauthorized:  describe(http.StatusUnauthorized, "authentication required", exposed),
	CodeForbidden:     describe(http.StatusForbidden, "access denied", exposed),
	CodeNotFound:      describe(http.StatusNotFound, "resource not found", exposed),
	CodeConflict:      describe(http.StatusConflict, "conflict detected", retryable|exposed),
	CodeStateConflict: describe(http.StatusUnprocessableEntity, "state transition disallowed", details|exposed),
	CodeInsufficient:  describe(http.StatusPaymentRequired, "insufficient funds", details|exposed),
	CodeIdempotency:   describe(http.StatusConflict, "idempotency key reused", details|exposed),
	CodeRateLimit:     describe(http.StatusTooManyRequests, "rate limit exceeded", retryable|exposed),
	CodeInternal:      describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|details),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error. The zero value is not useful; build one with
// New, Wrap or NewReason. Methods tolerate a nil receiver.
type Error struct {
	code    Code
	reason  Reason
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err yields New(code, message).
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

// Reason is empty when none was attached.
func (e *Error) Reason() Reason {
	if e == nil {
		return ""
	}
	return e.reason
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithReason(reason Reason) *Error {
	if e != nil {
		e.reason = reason
	}
	return e
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	head := string(e.code)
	if e.reason != "" {
		head += "(" + string(e.reason) + ")"
	}
	return head + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As finds the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
