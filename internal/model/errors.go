package model

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures for callers outside the core.
type Kind string

const (
	KindInsufficientFunds Kind = "insufficient_funds"
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindAlreadyProcessed  Kind = "already_processed"
	KindNotMatured        Kind = "not_matured"
	KindPermissionDenied  Kind = "permission_denied"
	KindInvalidArgument   Kind = "invalid_argument"
	KindInternal          Kind = "internal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrNotMatured        = errors.New("position not matured")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidArgument   = errors.New("invalid argument")

	// ErrInvalidAmount means a non-positive amount was passed.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
)

var sentinels = map[Kind]error{
	KindInsufficientFunds: ErrInsufficientFunds,
	KindConflict:          ErrConflict,
	KindNotFound:          ErrNotFound,
	KindAlreadyProcessed:  ErrAlreadyProcessed,
	KindNotMatured:        ErrNotMatured,
	KindPermissionDenied:  ErrPermissionDenied,
	KindInvalidArgument:   ErrInvalidArgument,
}

// Error is a taxonomy kind plus a human-readable reason and an optional cause.
// It unwraps to the sentinel of its kind and to Err, so errors.Is(err, ErrNotFound)
// and errors.Is(err, <driver error>) both keep working. Err never reaches Reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if base := sentinels[e.Kind]; base != nil {
		if msg == "" {
			msg = base.Error()
		} else {
			msg = base.Error() + ": " + msg
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if base := sentinels[e.Kind]; base != nil {
		errs = append(errs, base)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Errorf builds an *Error of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap is Errorf with a cause attached.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf reports the taxonomy kind of err, KindInternal for anything unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindInternal
}

// Reason returns the user-facing message for err. Internal errors are masked.
func Reason(err error) string {
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}
