// Package apperror classifies domain failures into the stable, user-facing
// taxonomy returned to callers of the core.
//
// Domain packages keep their own sentinel errors (assignment.ErrAlreadyAssigned,
// firmware.ErrAlreadySynced, ...). Service methods wrap those sentinels in an *Error
// carrying a Kind and a fixed message, so both checks hold:
//
//	errors.Is(err, assignment.ErrAlreadyAssigned)
//	apperror.KindOf(err) == apperror.Conflict
//
// Response turns any error into a Status/Code/Message triple. Errors that
// were not classified become internal_error with a generic message, so no
// driver or stack detail reaches the caller.
package apperror

import (
	"errors"
	"net/http"
)

// Kind is the classification of a failure.
type Kind string

// Failure kinds.
const (
	NotFound            Kind = "not_found"
	Conflict            Kind = "conflict"
	QuotaExceeded       Kind = "quota_exceeded"
	Validation          Kind = "validation_error"
	ConcurrencyConflict Kind = "concurrency_conflict"
	Internal            Kind = "internal_error"
)

// internalMessage is the only text an unclassified error exposes.
const internalMessage = "Something went wrong"

// Error is a classified failure with a stable user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an *Error of kind with message, wrapping cause (which may be nil).
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Shorthands for the kinds raised by the services.

func NewNotFound(message string, cause error) *Error {
	return New(NotFound, message, cause)
}

func NewConflict(message string, cause error) *Error {
	return New(Conflict, message, cause)
}

func NewQuotaExceeded(message string, cause error) *Error {
	return New(QuotaExceeded, message, cause)
}

func NewValidation(message string, cause error) *Error {
	return New(Validation, message, cause)
}

func NewConcurrencyConflict(message string, cause error) *Error {
	return New(ConcurrencyConflict, message, cause)
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps a Kind to its HTTP-style status code.
func (k Kind) Status() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case QuotaExceeded:
		return http.StatusForbidden
	case Validation:
		return http.StatusBadRequest
	case ConcurrencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the structured failure returned to callers.
type Body struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response converts err into a Body. It returns the zero Body for nil.
func Response(err error) Body {
	if err == nil {
		return Body{}
	}
	var e *Error
	if !errors.As(err, &e) {
		return Body{
			Status:  http.StatusInternalServerError,
			Code:    string(Internal),
			Message: internalMessage,
		}
	}
	msg := e.Message
	if e.Kind == Internal || msg == "" {
		msg = internalMessage
	}
	return Body{
		Status:  e.Kind.Status(),
		Code:    string(e.Kind),
		Message: msg,
	}
}
