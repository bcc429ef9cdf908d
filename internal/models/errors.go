package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, machine-readable category of a domain failure.
type ErrorKind string

const (
	KindValidation              ErrorKind = "ValidationError"
	KindInvalidTransition       ErrorKind = "InvalidTransition"
	KindImmutableFieldViolation ErrorKind = "ImmutableFieldViolation"
	KindGroupFull               ErrorKind = "GroupFull"
	KindAlreadyMember           ErrorKind = "AlreadyMember"
	KindNotAMember              ErrorKind = "NotAMember"
	KindPayoutPending           ErrorKind = "PayoutPending"
	KindArrearsOutstanding      ErrorKind = "ArrearsOutstanding"
	KindUpcomingPayoutScheduled ErrorKind = "UpcomingPayoutScheduled"
	KindNoEligibleMember        ErrorKind = "NoEligibleMember"
	KindDuplicatePayout         ErrorKind = "DuplicatePayout"
	KindAmountMismatch          ErrorKind = "AmountMismatch"
	KindForbidden               ErrorKind = "Forbidden"
	KindNotFound                ErrorKind = "NotFound"

	// Wallet collaborator failures. Both are retryable by the caller.
	KindInsufficientFunds   ErrorKind = "InsufficientFunds"
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
)

// Error is a typed domain failure. Message is suitable for direct display.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf creates an Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
