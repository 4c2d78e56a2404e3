package types

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch without string matching.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInvalidInput   Kind = "invalid_input"
	KindForbidden      Kind = "forbidden"
	KindStateViolation Kind = "state_violation"
)

// Error is the structured failure reported to clients as
// {"error":{"code":...,"message":...}}. All expected failures in the core
// are values of this type; none of them indicate corrupted state.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a structured error for the given taxonomy kind.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf extracts the taxonomy kind from an error chain, or "" if the error
// is not a structured core error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
