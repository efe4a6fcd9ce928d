// Package clauderr defines the error taxonomy shared across daemon
// components so that boundary code (API server, proxy) can map any
// internal failure to a small, stable set of client-facing categories.
package clauderr

import (
	"errors"
	"fmt"
)

// Code is one of the taxonomy categories from the error handling design.
type Code string

const (
	CodeNotFound        Code = "NotFound"
	CodeAlreadyExists   Code = "AlreadyExists"
	CodeInvalidInput    Code = "InvalidInput"
	CodeBackendFailure  Code = "BackendFailure"
	CodeIoFailure       Code = "IoFailure"
	CodeProxyFailure    Code = "ProxyFailure"
	CodeReconcileGaveUp Code = "ReconcileGaveUp"
	CodeUnauthorized    Code = "Unauthorized"
	CodeInternal        Code = "Internal"
)

// Error wraps an underlying cause with a stable code and, for
// BackendFailure, the component that failed. The cause is kept for
// logging with a correlation id but Error() never includes it, so
// callers that print err.Error() to a client do not leak internals.
type Error struct {
	Code      Code
	Component string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Component)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// BackendFailure wraps cause as a BackendFailure attributed to component.
func BackendFailure(component, message string, cause error) *Error {
	return &Error{Code: CodeBackendFailure, Component: component, Message: message, Cause: cause}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func AlreadyExists(message string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: message}
}

func InvalidInput(message string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message}
}

// CodeOf extracts the taxonomy code from err, defaulting to Internal for
// errors that did not originate from this package.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
