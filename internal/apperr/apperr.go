// Package apperr classifies failures surfaced to callers of the blog client.
//
// Every error carries a human-readable Message which is what Error returns;
// callers present it as-is.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	// Transport covers network failures and any rejected request not listed below.
	Transport Kind = iota
	Validation
	Forbidden
	Unauthorized
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Forbidden:
		return "forbidden"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	default:
		return "transport"
	}
}

type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newLocal(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// ValidationError отклоняет ввод до любого изменения состояния
func ValidationError(msg string) *Error { return newLocal(Validation, msg) }

func ForbiddenError(msg string) *Error { return newLocal(Forbidden, msg) }

func Unauthenticated(msg string) *Error { return newLocal(Unauthorized, msg) }

func NotFoundError(msg string) *Error { return newLocal(NotFound, msg) }

// KindOf returns Transport for errors that are not *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transport
}

func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

func IsUnauthorized(err error) bool {
	return Is(err, Unauthorized)
}

// Status maps a kind back to the HTTP status the reference server answers with.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case Forbidden:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return Unauthorized
	case http.StatusForbidden:
		return Forbidden
	case http.StatusNotFound:
		return NotFound
	default:
		return Transport
	}
}
