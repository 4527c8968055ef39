// Package apperr defines the error taxonomy shared across service and handler
// layers. Every error surfaced to a caller carries a stable machine-checkable
// Kind plus a human-readable message; wrapped causes stay server-side and are
// never serialized into responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind string

const (
	// KindValidation marks malformed or out-of-range input. Always caller-fixable.
	KindValidation Kind = "validation_error"
	// KindNotFound marks a missing entity or an entity not in an eligible state
	// for the requested action. The two cases are deliberately conflated so a
	// caller cannot probe the state of requests it lost a race on.
	KindNotFound Kind = "not_found"
	// KindConflict marks an entity that exists but is in a terminal state that
	// forbids the requested transition.
	KindConflict Kind = "conflict"
	// KindUnauthorized marks a failed identity check (bad credentials, bad token).
	KindUnauthorized Kind = "unauthorized"
	// KindForbidden marks a privilege failure for an authenticated caller.
	KindForbidden Kind = "forbidden"
	// KindUpstream marks a provisioning call that failed outside the soft-failure
	// allowlist. Local state is guaranteed unchanged.
	KindUpstream Kind = "upstream_error"
	// KindStorage marks persistence unavailability. Fatal for the current call.
	KindStorage Kind = "storage_error"
)

// Error is the concrete error type carried across layer boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match two *Error values by Kind alone, so sentinel-style
// comparisons like errors.Is(err, apperr.New(apperr.KindConflict, "")) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records an underlying cause. The cause is kept for
// server-side logs only; Message is what callers see.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from any error. Errors that are not *Error are
// treated as storage-level failures so handlers fall back to a 500.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// Message extracts the caller-facing message from any error. Wrapped causes
// are excluded; errors that are not *Error get a generic message so internal
// details never leak into responses.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
