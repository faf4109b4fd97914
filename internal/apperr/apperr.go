// Package apperr carries coded errors across actor boundaries. Every rejection
// or downstream failure is an (code, message, status) triple rather than a bare
// string, so callers and queue items can record the classification.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a coded error. Status defaults to 400 when zero.
func New(code, message string, status int) *Error {
	if status == 0 {
		status = http.StatusBadRequest
	}
	return &Error{Code: code, Message: message, Status: status}
}

// Newf is New with a formatted message.
func Newf(code string, status int, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), status)
}

// From coerces any error into an *Error. Unknown errors become INTERNAL_ERROR
// so implementation detail never leaks to clients.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Code: "INTERNAL_ERROR", Message: err.Error(), Status: http.StatusInternalServerError}
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}
