// Package fault - fault.go
// Comparable error values tagged with a kind, shared by queue, bet and mediator.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller: rejections carry a specific reason,
// external and storage failures are reported generically.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindExternal
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindExternal:
		return "external"
	case KindStorage:
		return "storage"
	}
	return "unknown"
}

// Error is a sentinel. Declare package level values with New and compare
// them with errors.Is.
type Error struct {
	kind Kind
	msg  string
}

func New(kind Kind, msg string) *Error { return &Error{kind: kind, msg: msg} }

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() Kind    { return e.kind }

// Rejection reports whether the error should be shown verbatim to the user.
func (e *Error) Rejection() bool {
	return e.kind == KindValidation || e.kind == KindConflict || e.kind == KindNotFound
}

// wrapped tags an arbitrary cause (collaborator or disk error) with a kind.
type wrapped struct {
	kind Kind
	op   string
	err  error
}

func (w *wrapped) Error() string { return fmt.Sprintf("%s: %v", w.op, w.err) }
func (w *wrapped) Unwrap() error { return w.err }
func (w *wrapped) Kind() Kind    { return w.kind }

// External wraps a failed collaborator call (chat platform, REST).
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: KindExternal, op: op, err: err}
}

// Storage wraps a failed gateway write.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: KindStorage, op: op, err: err}
}

// Validationf builds a one-off validation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return &Error{kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost tagged error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }
