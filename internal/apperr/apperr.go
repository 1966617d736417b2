package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure. Every error that crosses an
// operation boundary is mapped onto one of these; none of them is
// fatal to the process.
type Kind int

const (
	// KindUnknown is an unclassified transport or store failure.
	KindUnknown Kind = iota
	// KindInvalidInput covers empty required fields, malformed
	// dates and times already in the past.
	KindInvalidInput
	// KindConflict is a naming collision on agent creation.
	KindConflict
	// KindPermissionDenied means the store rejected a write per its
	// access rules.
	KindPermissionDenied
	// KindNotFound means the target entity has since been deleted.
	KindNotFound
	// KindInvariantViolation covers operations that would break a
	// structural invariant, such as deleting the last project.
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error is a classified error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, keeping it unwrappable.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FriendlyMessage returns the operator-facing message for an error.
// Permission failures get a distinguished hint because they almost
// always mean misconfigured store access rules.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	if Is(err, KindPermissionDenied) {
		return "write permission denied: check the store access rules"
	}
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}
