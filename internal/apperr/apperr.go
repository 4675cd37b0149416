// Package apperr defines the error taxonomy shared by the tree store, the
// collection converter and the execution engine.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindBadRequest
	KindForbidden
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a classified error with a machine readable code and optional
// details that are surfaced to the caller alongside the code.
type Error struct {
	Kind    Kind
	Code    string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can test
// errors.Is(err, apperr.ErrNotFound) without caring about the code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrBadRequest  = &Error{Kind: KindBadRequest}
	ErrForbidden   = &Error{Kind: KindForbidden}
	ErrRateLimited = &Error{Kind: KindRateLimited}
)

// NotFound returns a not_found error wrapping cause.
func NotFound(cause error) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Err: cause}
}

// BadRequest returns a user-correctable error with the given code.
func BadRequest(code string) *Error {
	return &Error{Kind: KindBadRequest, Code: code}
}

// BadRequestWith returns a BadRequest error carrying extra details.
func BadRequestWith(code string, details map[string]any) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Details: details}
}

// VersionMismatch returns a conflict carrying the node's current version.
func VersionMismatch(currentVersion int) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    "version_mismatch",
		Details: map[string]any{"currentVersion": currentVersion},
	}
}

// Forbidden returns a forbidden error with the given code.
func Forbidden(code string) *Error {
	return &Error{Kind: KindForbidden, Code: code}
}

// RateLimited returns the rejection used by the rate limiter.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Code: "rate_limited"}
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CurrentVersion extracts the current version from a version_mismatch error.
func CurrentVersion(err error) (int, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindConflict {
		return 0, false
	}
	v, ok := e.Details["currentVersion"].(int)
	return v, ok
}
