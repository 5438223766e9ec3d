// Package domainerrors provides coded errors for the registry's failure
// taxonomy. Services return these so transports can map failures to status
// codes without string matching, and callers always learn the specific kind.
//
// Infrastructure layers return pkg/platform/sentinel errors instead; services
// translate sentinels into coded errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure kind. The string values are part of the API
// error envelope and must stay stable.
type Code string

const (
	// CodeInvalidFee: attached payment below the computed requirement.
	CodeInvalidFee Code = "invalid_fee"
	// CodeHashAlreadyExists: fingerprint collision at issuance.
	CodeHashAlreadyExists Code = "hash_already_exists"
	// CodeNotFound: referenced certificate does not exist.
	CodeNotFound Code = "not_found"
	// CodeNotAuthorized: caller lacks the owner/issuer/co-certifier
	// relationship required for the operation.
	CodeNotAuthorized Code = "not_authorized"
	// CodeCooldownNotMet: revocation attempted before the cooldown elapses.
	CodeCooldownNotMet Code = "cooldown_not_met"
	// CodeInvalidInput: malformed arguments.
	CodeInvalidInput Code = "invalid_input"
	// CodeAlreadyRevoked: mutation attempted against a certificate already
	// in its terminal state.
	CodeAlreadyRevoked Code = "already_revoked"

	// CodeUnauthorized: missing or invalid credentials (transport concern).
	CodeUnauthorized Code = "unauthorized"
	// CodeConflict: concurrent update conflict.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation: a domain invariant would be broken; indicates
	// a bug in the caller of the model layer.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal: unexpected infrastructure failure.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It wraps an optional cause for errors.Is
// and errors.As chains.
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

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability:
// dErrors.Is(err, dErrors.CodeNotFound).
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-safe message from err. Uncoded errors map to
// a generic message so internals never leak through the API.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// HTTPStatus maps a code to its HTTP status for the transport layer.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidFee:
		return http.StatusPaymentRequired
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeHashAlreadyExists, CodeAlreadyRevoked, CodeCooldownNotMet, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
