package domain

import (
	"errors"
	"fmt"

	"github.com/punchamoorthee/fundops/internal/ledger"
)

// Sentinels for errors.Is checks. Every failure returned by the core wraps one of these.
var (
	ErrEntityNotFound         = errors.New("entity not found")
	ErrInvalidRequestType     = errors.New("invalid request type")
	ErrInvalidRequestStatus   = errors.New("invalid request status")
	ErrInvalidRequestID       = errors.New("invalid request id")
	ErrInvalidContractStatus  = errors.New("invalid contract status")
	ErrContractAmounts        = errors.New("repayment amount must exceed target amount")
	ErrFundingAmount          = errors.New("funding amount exceeds outstanding amount")
	ErrInvalidCost            = errors.New("cost must be positive")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrContractAlreadyCreated = errors.New("contract already exists for request")
)

// Error carries the offending entity and value so callers can build a precise message.
type Error struct {
	Err    error
	Entity string
	ID     int64
	Value  any
}

func (e *Error) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s %d: %v", e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %d: %v (got %v)", e.Entity, e.ID, e.Err, e.Value)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(entity string, id int64) error {
	return &Error{Err: ErrEntityNotFound, Entity: entity, ID: id}
}

func NewError(err error, entity string, id int64, value any) error {
	return &Error{Err: err, Entity: entity, ID: id, Value: value}
}

// Kind groups failures the way callers react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidState
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindInvariant:
		return "invariant_violation"
	default:
		return "internal"
	}
}

// KindOf classifies err. Anything not produced by the core is KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrEntityNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidRequestType),
		errors.Is(err, ErrInvalidRequestStatus),
		errors.Is(err, ErrInvalidRequestID),
		errors.Is(err, ErrInvalidContractStatus),
		errors.Is(err, ErrContractAlreadyCreated),
		errors.Is(err, ledger.ErrWalletExists):
		return KindInvalidState
	case errors.Is(err, ErrContractAmounts),
		errors.Is(err, ErrFundingAmount),
		errors.Is(err, ErrInvalidCost),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidBalance):
		return KindInvariant
	default:
		return KindInternal
	}
}
