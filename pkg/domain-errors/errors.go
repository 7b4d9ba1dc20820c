// Package domainerrors provides coded errors for the service layer.
//
// Stores return sentinel errors (pkg/platform/sentinel) describing
// infrastructure facts; services translate those into coded errors that
// transports can map onto HTTP statuses and CLI exit codes without string
// matching.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code enumerates the error taxonomy surfaced to callers. The anchoring
// codes are deliberately distinct from the generic ones: a caller retrying
// LedgerUnavailable must behave differently from one seeing AlreadyAnchored.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeUnauthorized        Code = "unauthorized"
	CodeAccessDenied        Code = "access_denied"
	CodeNotFound            Code = "not_found"
	CodeConflict            Code = "conflict"
	CodeConstraintViolation Code = "constraint_violation"
	CodeInvalidDigest       Code = "invalid_digest"
	CodeDigestMismatch      Code = "digest_mismatch"
	CodeAlreadyAnchored     Code = "already_anchored"
	CodeLedgerUnavailable   Code = "ledger_unavailable"
	CodeTimeout             Code = "timeout"
	CodeInternal            Code = "internal"
)

// Error carries a taxonomy code, a caller-facing message and an optional
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (anywhere in its chain) carries the code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// HTTPStatus maps a taxonomy code onto an HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidDigest, CodeDigestMismatch:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeConstraintViolation, CodeAlreadyAnchored:
		return http.StatusConflict
	case CodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps a taxonomy code onto a stable CLI exit code.
func ExitCode(code Code) int {
	switch code {
	case CodeNotFound:
		return 2
	case CodeConflict, CodeConstraintViolation:
		return 3
	case CodeAlreadyAnchored:
		return 4
	case CodeInvalidDigest:
		return 5
	case CodeDigestMismatch:
		return 6
	case CodeLedgerUnavailable:
		return 7
	case CodeAccessDenied, CodeUnauthorized:
		return 8
	case CodeBadRequest:
		return 9
	case CodeTimeout:
		return 10
	default:
		return 1
	}
}
