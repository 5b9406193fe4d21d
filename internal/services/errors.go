package services

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how callers should react to them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "ValidationError"
	KindAuthorization  ErrorKind = "AuthorizationError"
	KindNotFound       ErrorKind = "NotFoundError"
	KindStateConflict  ErrorKind = "StateConflictError"
	KindTransientInfra ErrorKind = "TransientInfraError"
)

// AppError is the error type every service operation surfaces. Code is the
// stable, machine-checkable reason; two AppErrors match under errors.Is when
// their codes are equal.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// With returns a copy carrying a more specific message.
func (e *AppError) With(format string, args ...any) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Wrap returns a copy with cause attached.
func (e *AppError) Wrap(cause error) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

var (
	ErrValidation       = &AppError{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: "invalid request"}
	ErrAmountOutOfRange = &AppError{Kind: KindValidation, Code: "AMOUNT_OUT_OF_RANGE", Message: "bid amount is outside the allowed price range"}

	ErrForbidden          = &AppError{Kind: KindAuthorization, Code: "FORBIDDEN", Message: "not allowed"}
	ErrNotBookingOwner    = &AppError{Kind: KindAuthorization, Code: "NOT_BOOKING_OWNER", Message: "booking belongs to another customer"}
	ErrInvalidCredentials = &AppError{Kind: KindAuthorization, Code: "INVALID_CREDENTIALS", Message: "invalid credentials"}

	ErrBookingNotFound = &AppError{Kind: KindNotFound, Code: "BOOKING_NOT_FOUND", Message: "booking not found"}
	ErrBidNotFound     = &AppError{Kind: KindNotFound, Code: "BID_NOT_FOUND", Message: "bid not found"}
	ErrUserNotFound    = &AppError{Kind: KindNotFound, Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrNoLocation      = &AppError{Kind: KindNotFound, Code: "LOCATION_UNKNOWN", Message: "no recent driver location"}

	ErrAlreadyConfirmed    = &AppError{Kind: KindStateConflict, Code: "ALREADY_CONFIRMED", Message: "booking is no longer pending"}
	ErrInvalidTransition   = &AppError{Kind: KindStateConflict, Code: "INVALID_TRANSITION", Message: "invalid status transition"}
	ErrBiddingLocked       = &AppError{Kind: KindStateConflict, Code: "BIDDING_LOCKED", Message: "bidding is closed inside the pre-pickup window"}
	ErrBookingNotBiddable  = &AppError{Kind: KindStateConflict, Code: "BOOKING_NOT_BIDDABLE", Message: "booking is not open for bids"}
	ErrEmailTaken          = &AppError{Kind: KindStateConflict, Code: "EMAIL_TAKEN", Message: "email already registered"}
	ErrPaymentNotVerified  = &AppError{Kind: KindValidation, Code: "PAYMENT_NOT_VERIFIED", Message: "payment could not be verified"}
	ErrNotificationFailure = &AppError{Kind: KindTransientInfra, Code: "NOTIFICATION_FAILED", Message: "notification delivery failed"}
	ErrCacheUnavailable    = &AppError{Kind: KindTransientInfra, Code: "CACHE_UNAVAILABLE", Message: "location cache unavailable"}
)

// KindOf reports the kind of err, or "" for errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// CodeOf reports the stable code of err, or "" for errors outside the taxonomy.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
