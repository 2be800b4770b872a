// Package apperr defines the error kinds shared by the store, ledger and
// HTTP layers. Callers branch on Kind, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	// Internal is the fallback for anything not classified below.
	Internal Kind = iota
	NotFound
	InvalidInput
	Conflict
	DataConsistency
	BackendUnavailable
	// Transaction is a store transaction that failed for a reason other than
	// the kinds above (aborted, retries exhausted, commit error).
	Transaction
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidInput:
		return "invalid_input"
	case Conflict:
		return "conflict"
	case DataConsistency:
		return "data_consistency"
	case BackendUnavailable:
		return "backend_unavailable"
	case Transaction:
		return "transaction"
	default:
		return "internal"
	}
}

// Error carries a Kind, the operation that produced it and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works
// through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrNotFound           = &Error{Kind: NotFound}
	ErrInvalidInput       = &Error{Kind: InvalidInput}
	ErrConflict           = &Error{Kind: Conflict}
	ErrDataConsistency    = &Error{Kind: DataConsistency}
	ErrBackendUnavailable = &Error{Kind: BackendUnavailable}
	ErrTransaction        = &Error{Kind: Transaction}
)

func E(kind Kind, op, msg string) *Error { return &Error{Kind: kind, Op: op, Msg: msg} }

func Wrap(kind Kind, op string, err error) *Error { return &Error{Kind: kind, Op: op, Err: err} }

func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the outermost *Error in err's chain; Internal otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func IsNotFound(err error) bool { return KindOf(err) == NotFound }
func IsConflict(err error) bool { return KindOf(err) == Conflict }
