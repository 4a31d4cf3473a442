package escrow

import (
	"errors"
	"fmt"
)

// Kind classifies why a transition was rejected.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindAuthorization: the caller lacks the role the transition requires.
	KindAuthorization
	// KindPrecondition: listing missing, already terminal, or a gate condition is unmet.
	KindPrecondition
	// KindCollaborator: the asset registry or funds source failed; the cause is wrapped unchanged.
	KindCollaborator
	// KindBusy: the listing lock could not be acquired in time, or a concurrent writer won.
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindPrecondition:
		return "precondition"
	case KindCollaborator:
		return "collaborator"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

var (
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrListingNotFound     = errors.New("listing not found")
	ErrAlreadyListed       = errors.New("asset already listed")
	ErrListingClosed       = errors.New("listing is not active")
	ErrInvalidTerms        = errors.New("invalid listing terms")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInspectionNotPassed = errors.New("inspection not passed")
	ErrApprovalMissing     = errors.New("sale not approved by all parties")
	ErrInsufficientDeposit = errors.New("deposited balance below purchase price")
	ErrBusy                = errors.New("listing is busy")
	ErrConcurrentUpdate    = errors.New("listing changed concurrently")
)

// Error is returned by every Ledger transition. Op names the transition ("finalizeSale").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("escrow %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func authErr(op string, err error) error {
	return &Error{Kind: KindAuthorization, Op: op, Err: err}
}

func preconditionErr(op string, err error) error {
	return &Error{Kind: KindPrecondition, Op: op, Err: err}
}

func collaboratorErr(op string, err error) error {
	return &Error{Kind: KindCollaborator, Op: op, Err: err}
}

func busyErr(op string, err error) error {
	return &Error{Kind: KindBusy, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err did not come from the ledger.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsAuthorization(err error) bool { return KindOf(err) == KindAuthorization }
func IsPrecondition(err error) bool  { return KindOf(err) == KindPrecondition }
func IsCollaborator(err error) bool  { return KindOf(err) == KindCollaborator }
func IsBusy(err error) bool          { return KindOf(err) == KindBusy }
