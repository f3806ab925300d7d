// Package errors provides the error kinds surfaced by the storefront services.
//
// Each kind is a sentinel. Services return *Error values that unwrap to their kind,
// so transports classify with errors.Is and render Name() and HTTPStatus().
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation         = errors.New("ValidationError")
	ErrInvalidUpdateField = errors.New("InvalidUpdateField")
	ErrNotFound           = errors.New("NotFoundError")
	ErrConflict           = errors.New("ConflictError")
	ErrInsufficientStock  = errors.New("InsufficientStock")
	ErrInternal           = errors.New("InternalError")
)

// Store-level sentinels; services translate them into the kinds above.
var (
	ErrProductNotFound = errors.New("product not found")
	ErrCartNotFound    = errors.New("cart not found")
	ErrDuplicateCode   = errors.New("product code already exists")
	ErrStockConflict   = errors.New("stock changed during reservation")
)

// Error is a classified failure with a client-facing message.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func Validation(format string, args ...any) *Error {
	return newError(ErrValidation, nil, format, args...)
}

func InvalidUpdateField(field string) *Error {
	return newError(ErrInvalidUpdateField, nil, "field %q cannot be updated", field)
}

func NotFound(format string, args ...any) *Error {
	return newError(ErrNotFound, nil, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(ErrConflict, nil, format, args...)
}

// InsufficientStock names the first line item that could not be satisfied.
func InsufficientStock(productID string, requested, available int) *Error {
	return newError(ErrInsufficientStock, nil,
		"product %s: requested %d, available %d", productID, requested, available)
}

func Internal(cause error, format string, args ...any) *Error {
	return newError(ErrInternal, cause, format, args...)
}

// Name returns the kind name of err; unclassified errors are InternalError.
func Name(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.Error()
	}
	return ErrInternal.Error()
}

// Message returns the client-facing message. Causes of internal errors are not exposed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "unexpected failure"
}

// HTTPStatus maps err to the status code the REST layer responds with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidUpdateField):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInsufficientStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
