package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/susu/internal/middleware"
	"github.com/mmynk/susu/internal/models"
)

// codeFor maps a domain error kind to a Connect code.
func codeFor(kind models.ErrorKind) connect.Code {
	switch kind {
	case models.KindNotFound:
		return connect.CodeNotFound
	case models.KindForbidden:
		return connect.CodePermissionDenied
	case models.KindValidation, models.KindAmountMismatch:
		return connect.CodeInvalidArgument
	case models.KindAlreadyMember, models.KindDuplicatePayout:
		return connect.CodeAlreadyExists
	case models.KindInsufficientFunds, models.KindProviderUnavailable:
		return connect.CodeUnavailable
	case models.KindInvalidTransition,
		models.KindImmutableFieldViolation,
		models.KindGroupFull,
		models.KindNotAMember,
		models.KindPayoutPending,
		models.KindArrearsOutstanding,
		models.KindUpcomingPayoutScheduled,
		models.KindNoEligibleMember:
		return connect.CodeFailedPrecondition
	}
	return connect.CodeInternal
}

// toConnectError converts an engine error into a Connect error. Domain errors keep their
// message and carry their kind in a response header; anything else is logged and
// reported as internal without details.
func (s *CircleService) toConnectError(ctx context.Context, procedure string, err error) error {
	var domainErr *models.Error
	if errors.As(err, &domainErr) {
		connectErr := connect.NewError(codeFor(domainErr.Kind), domainErr)
		connectErr.Meta().Set(middleware.ErrorKindHeader, string(domainErr.Kind))
		return connectErr
	}
	if errors.Is(err, context.Canceled) {
		return connect.NewError(connect.CodeCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	s.logger.ErrorContext(ctx, "Request failed", "procedure", procedure, "error", err)
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

// KindOf extracts the domain error kind from a Connect error returned by a client.
func KindOf(err error) models.ErrorKind {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return models.ErrorKind(connectErr.Meta().Get(middleware.ErrorKindHeader))
	}
	return models.KindOf(err)
}
