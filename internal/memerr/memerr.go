// Package memerr implements the error taxonomy: every fault surfaced by
// the core collapses into exactly one of a fixed set of codes, with a
// message and optional structured details. Storage-level causes are kept
// wrapped (via %w) for logging but are never serialized in a verb response.
package memerr

import (
	"errors"
	"fmt"
)

// Code is one of the five taxonomy members.
type Code string

const (
	ValidationError  Code = "validation_error"
	NotFound         Code = "not_found"
	LockConflict     Code = "lock_conflict"
	PermissionDenied Code = "permission_denied"
	InternalError    Code = "internal_error"
)

// Error is the structured error every verb handler ultimately returns.
// JSON tags match the response envelope shape ({code, message, details});
// cause is never serialized, only logged.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches a wrapped storage-level cause, reachable through
// Unwrap for logging but never exposed in the envelope or written to the
// ActionResult fact.
func (e *Error) WithCause(cause error) *Error {
	e2 := *e
	e2.cause = cause
	return &e2
}

func new_(code Code, msg string, details map[string]any) *Error {
	return &Error{Code: code, Message: msg, Details: details}
}

func Validation(fieldPath, reason string) *Error {
	return new_(ValidationError, fmt.Sprintf("%s: %s", fieldPath, reason), map[string]any{
		"field":  fieldPath,
		"reason": reason,
	})
}

func NotFoundErr(id string) *Error {
	return new_(NotFound, fmt.Sprintf("not found: %s", id), map[string]any{"id": id})
}

func LockConflictErr(entityID, expectedHash, actualHash string) *Error {
	return new_(LockConflict, "optimistic lock conflict", map[string]any{
		"entity_id":     entityID,
		"expected_hash": expectedHash,
		"actual_hash":   actualHash,
	})
}

func BusyTimeout(db string) *Error {
	return new_(LockConflict, fmt.Sprintf("writer busy on %s", db), map[string]any{"database": db})
}

func PermissionDeniedErr(reason string) *Error {
	return new_(PermissionDenied, reason, nil)
}

func Internal(diagnosticID string, cause error) *Error {
	e := new_(InternalError, "internal error", map[string]any{"diagnostic_id": diagnosticID})
	if cause != nil {
		return e.WithCause(cause)
	}
	return e
}

// As extracts a *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, defaulting to internal_error for
// anything that isn't already a *Error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return InternalError
}
