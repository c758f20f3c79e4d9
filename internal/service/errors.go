package service

import "fmt"

// Kind classifies a workflow failure.  Handlers map kinds to HTTP status
// codes; the Reason is shown to the user as is.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	// KindInternal and KindNotAttempted only appear in bulk item results.
	KindInternal     Kind = "internal"
	KindNotAttempted Kind = "not_attempted"
)

// Error is the typed result of a rejected operation.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Is makes errors.Is(err, ErrConflict) match any Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.  They carry no reason.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
)

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Reason: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...any) *Error { return newError(KindValidation, format, args...) }
func conflictf(format string, args ...any) *Error   { return newError(KindConflict, format, args...) }
func notFoundf(format string, args ...any) *Error   { return newError(KindNotFound, format, args...) }
func forbiddenf(format string, args ...any) *Error  { return newError(KindForbidden, format, args...) }
func invalidStatef(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}
