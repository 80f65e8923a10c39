package protocol

import (
	"errors"
	"fmt"
)

// Error codes. These are protocol-level codes, not HTTP status codes.
const (
	// ErrCodeInvalidFormat indicates a malformed id or compact text.
	ErrCodeInvalidFormat = "INVALID_FORMAT"

	// ErrCodeTransport indicates a network failure, timeout or
	// non-success status talking to an issuer.
	ErrCodeTransport = "TRANSPORT_ERROR"

	// ErrCodeNotFound indicates the issuer has no record for the id.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeRevoked indicates the issuer revoked the claim.
	ErrCodeRevoked = "REVOKED"

	// ErrCodeKeyNotFound indicates no published key carries the signing kid.
	ErrCodeKeyNotFound = "KEY_NOT_FOUND"

	// ErrCodeSignatureInvalid indicates signature verification failed.
	ErrCodeSignatureInvalid = "SIGNATURE_INVALID"

	// ErrCodeIssuerMismatch indicates the claim issuer is not the domain
	// the keys were fetched from.
	ErrCodeIssuerMismatch = "ISSUER_MISMATCH"

	// ErrCodeMalformedKey indicates key material of the wrong type,
	// encoding or length.
	ErrCodeMalformedKey = "MALFORMED_KEY"
)

// Error is a protocol error carrying one of the ErrCode* values.
type Error struct {
	// Code is one of the ErrCode* constants.
	Code string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError creates a new Error that wraps an underlying error.
func WrapError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinels for use with errors.Is.
var (
	ErrInvalidFormat    = NewError(ErrCodeInvalidFormat, "invalid format")
	ErrTransport        = NewError(ErrCodeTransport, "transport failure")
	ErrNotFound         = NewError(ErrCodeNotFound, "claim not found")
	ErrRevoked          = NewError(ErrCodeRevoked, "claim has been revoked")
	ErrKeyNotFound      = NewError(ErrCodeKeyNotFound, "signing key not published by issuer")
	ErrSignatureInvalid = NewError(ErrCodeSignatureInvalid, "signature verification failed")
	ErrIssuerMismatch   = NewError(ErrCodeIssuerMismatch, "claim issuer does not match key domain")
	ErrMalformedKey     = NewError(ErrCodeMalformedKey, "malformed public key")
)

// AsError checks if err is an Error and returns it if so.
func AsError(err error) (*Error, bool) {
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an Error, or returns empty string.
func GetErrorCode(err error) string {
	if protoErr, ok := AsError(err); ok {
		return protoErr.Code
	}
	return ""
}
