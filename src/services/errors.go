package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error classes. Every error returned by the services matches exactly one of
// them under errors.Is, except PaymentError which matches ErrExternal.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid")
	ErrForbidden = errors.New("forbidden")
	ErrExternal  = errors.New("external service failure")
)

type Error struct {
	class error
	msg   string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.class }

func newError(class error, msg string) error {
	return &Error{class: class, msg: msg}
}

var (
	ErrOrderNotFound  = newError(ErrNotFound, "order not found")
	ErrTicketNotFound = newError(ErrNotFound, "ticket not found")
	ErrTypeNotFound   = newError(ErrNotFound, "ticket type not found")
	ErrOptionNotFound = newError(ErrNotFound, "ticket option not found")
	ErrTokenNotFound  = newError(ErrNotFound, "token not found")
	ErrRFIDNotFound   = newError(ErrNotFound, "rfid link not found")
	ErrUserNotFound   = newError(ErrNotFound, "user not found")

	ErrImmutableOrder          = newError(ErrConflict, "order can no longer be modified")
	ErrUnassignedOrder         = newError(ErrConflict, "order has no owner")
	ErrEmptyOrder              = newError(ErrConflict, "order has no tickets")
	ErrOrderLimitExceeded      = newError(ErrConflict, "order ticket limit exceeded")
	ErrSaleWindowClosed        = newError(ErrConflict, "ticket type is not on sale")
	ErrTicketsUnavailable      = newError(ErrConflict, "no tickets of this type left")
	ErrInvalidTicket           = newError(ErrConflict, "ticket is not valid")
	ErrTicketAlreadyLinked     = newError(ErrConflict, "ticket is bound to an rfid or a pending transfer")
	ErrDuplicateTransferToken  = newError(ErrConflict, "ticket already has a pending transfer")
	ErrSelfTransfer            = newError(ErrConflict, "cannot transfer a ticket to its owner")
	ErrInvalidToken            = newError(ErrConflict, "token is used or expired")
	ErrRFIDTaken               = newError(ErrConflict, "rfid is already linked")
	ErrDuplicateName           = newError(ErrConflict, "name already exists")
	ErrTicketLocked            = newError(ErrConflict, "ticket belongs to a settled order")
	ErrCapacityBelowAllocation = newError(ErrConflict, "capacity is below the allocated count")

	ErrInvalidOption = newError(ErrInvalid, "option is not permitted for this ticket type")
	ErrInvalidRFID   = newError(ErrInvalid, "rfid has the wrong format")

	ErrNotTokenDestination = newError(ErrForbidden, "token is addressed to another user")
	ErrNotTokenSource      = newError(ErrForbidden, "token was issued by another user")
)

// PaymentError reports a failed or timed out gateway call. The cause is kept
// for logging and never unwrapped, so callers only see ErrExternal.
type PaymentError struct {
	Op    string
	Cause error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment gateway %s failed", e.Op)
}

func (e *PaymentError) Unwrap() error { return ErrExternal }

// notFound maps gorm's missing record error to the given sentinel.
func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
