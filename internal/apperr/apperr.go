// Package apperr defines the error taxonomy shared by the room actor, its
// stores and the transport layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. The string value is the wire code.
type Kind string

const (
	KindInvalid       Kind = "invalid_request"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "unauthorized"
	KindStore         Kind = "store_error"
	KindGeneration    Kind = "generation_error"
	KindScheduleParse Kind = "schedule_parse_error"
	KindInternal      Kind = "internal_error"
)

// Error is a classified failure with an optional cause.
type Error struct {
	Kind    Kind
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

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

func Unauthorized(format string, args ...any) *Error {
	return newf(KindAuthorization, format, args...)
}

func Invalid(format string, args ...any) *Error { return newf(KindInvalid, format, args...) }

func ScheduleParse(format string, args ...any) *Error {
	return newf(KindScheduleParse, format, args...)
}

// Store wraps a persistence failure (constraint violation, missing thread root, I/O).
func Store(message string, cause error) *Error {
	return &Error{Kind: KindStore, Message: message, Err: cause}
}

// Generation wraps an LLM or tool failure during an agent turn.
func Generation(message string, cause error) *Error {
	return &Error{Kind: KindGeneration, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns a client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsUnauthorized(err error) bool  { return KindOf(err) == KindAuthorization }
func IsScheduleParse(err error) bool { return KindOf(err) == KindScheduleParse }
func IsStore(err error) bool         { return KindOf(err) == KindStore }

// HTTPStatus maps err to a response status for the RPC handlers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalid, KindScheduleParse:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindStore:
		return http.StatusConflict
	case KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
