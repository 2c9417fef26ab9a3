package shared

import (
	"errors"
	"fmt"
)

// Kind classifies domain errors so transports can map them without
// string matching.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindInvalidState  Kind = "invalid_state"
	KindOverReceipt   Kind = "over_receipt"
	KindPartialCommit Kind = "partial_commit"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error is the common domain error: a kind plus a human readable message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a KindValidation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// InvalidStatef builds a KindInvalidState error.
func InvalidStatef(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// OverReceiptError rejects a receipt entry that would push a line's
// cumulative received quantity past its ordered quantity.
type OverReceiptError struct {
	POItemID  int64
	ProductID int64
	Ordered   float64
	Received  float64
	Requested float64
}

func (e *OverReceiptError) Error() string {
	return fmt.Sprintf("over-receipt on line %d (product %d): ordered %.2f, already received %.2f, requested %.2f",
		e.POItemID, e.ProductID, e.Ordered, e.Received, e.Requested)
}

// PartialCommitError reports a multi-step operation that failed after
// one or more steps had already committed. It carries enough context
// for manual reconciliation.
type PartialCommitError struct {
	Op       string
	Entity   string
	EntityID int64
	Step     string
	Err      error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("%s partially committed: %s %d left inconsistent at step %q: %v",
		e.Op, e.Entity, e.EntityID, e.Step, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err, KindInternal when it carries none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var ore *OverReceiptError
	if errors.As(err, &ore) {
		return KindOverReceipt
	}
	var pce *PartialCommitError
	if errors.As(err, &pce) {
		return KindPartialCommit
	}
	return KindInternal
}
