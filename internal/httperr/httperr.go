// Package httperr carries the engine's error taxonomy: validation failures
// rejected before any store call, booking conflicts surfaced from the system
// of record, local policy violations, unavailable dependent data, and
// transactional failures from bulk operations.
package httperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine error for transport mapping.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindPolicy      Kind = "policy"
	KindNotFound    Kind = "not_found"
	KindUnavailable Kind = "unavailable"
	KindTransaction Kind = "transaction"
	KindInternal    Kind = "internal"
)

// Error is a classified engine error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation rejects bad input before any store call is made.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Conflict wraps a system-of-record rejection (slot or room no longer free).
func Conflict(code, message string, err error) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Err: err}
}

// Policy marks a business-rule rejection decided locally, without any call.
func Policy(code, message string) *Error {
	return &Error{Kind: KindPolicy, Code: code, Message: message}
}

// NotFound marks a missing entity.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Unavailable marks a dependent lookup failure. Callers must treat the
// affected range as fully blocked rather than show false availability.
func Unavailable(code, message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Code: code, Message: message, Err: err}
}

// Transaction marks a bulk operation that applied no changes.
func Transaction(code, message string, err error) *Error {
	return &Error{Kind: KindTransaction, Code: code, Message: message, Err: err}
}

// KindOf extracts the classification of err, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the stable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// Status maps an error kind to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindPolicy:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTransaction:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON encodes err as the API error envelope.
func WriteJSON(w http.ResponseWriter, err error) {
	status := Status(err)
	message := "internal error"
	var e *Error
	if errors.As(err, &e) {
		message = e.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": message,
		"code":  CodeOf(err),
		"kind":  string(KindOf(err)),
	})
}
