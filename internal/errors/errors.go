// Package errors defines the error value carried by every objio request.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel codes for failures that have no HTTP status. HTTP failures use
// the response status as their code.
const (
	// CodeConfig marks a request that was never sent because the backend
	// configuration or credentials were unusable.
	CodeConfig = -1
	// CodeTransport marks a DNS, connect, TLS or read failure.
	CodeTransport = -2
	// CodeTimeout marks a transfer that exceeded the transport timeout.
	CodeTimeout = -3
	// CodeShutdown marks a request submitted to a stopped engine.
	CodeShutdown = -4

	CodeNotFound = 404
)

// Error is the {code, message} value a request finishes with. A nil *Error
// (or nil error) means success.
type Error struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("objio error %d: %s", e.Code, e.Message)
}

// New returns an Error with the given code and message.
func New(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// HTTP returns the error for a non-success HTTP response.
func HTTP(status int, url string) *Error {
	return &Error{Code: status, Message: fmt.Sprintf("http error: %d -> %s", status, url)}
}

// Config returns a configuration error.
func Config(format string, args ...any) *Error {
	return New(CodeConfig, format, args...)
}

// Transport returns a transport error carrying the transport's description.
func Transport(err error) *Error {
	return &Error{Code: CodeTransport, Message: err.Error()}
}

// Timeout returns a timeout error carrying the transport's description.
func Timeout(err error) *Error {
	return &Error{Code: CodeTimeout, Message: err.Error()}
}

// NotFound is returned by in-process backends for a missing object.
func NotFound(name string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("Object: %s not found.", name)}
}

// CodeOf extracts the code from err. It returns 0 for nil and
// CodeTransport for errors that are not an *Error.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		if e == nil {
			return 0
		}
		return e.Code
	}
	return CodeTransport
}

// IsRetryableStatus reports whether an HTTP status is eligible for
// resubmission.
func IsRetryableStatus(status int) bool {
	switch status {
	case 409, 500, 503:
		return true
	}
	return false
}

// IsSuccessStatus reports whether an HTTP status counts as success:
// 200, 201-208 and 226.
func IsSuccessStatus(status int) bool {
	return status == 200 || (status >= 201 && status <= 208) || status == 226
}
