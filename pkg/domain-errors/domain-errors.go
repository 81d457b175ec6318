package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeInternal     Code = "internal_error"

	// CodeConfiguration covers fatal misconfiguration of the signing key set.
	// A process carrying this error cannot issue credentials at all.
	CodeConfiguration Code = "configuration_error"

	// CodeKeyOrder marks a signing key set whose start times are not strictly
	// increasing with version.
	CodeKeyOrder Code = "key_order"

	// CodeVerification marks an unexpected exception while validating a
	// challenge. Distinct from CodeUnauthorized, which is a deliberate
	// rejection; the two must never be conflated.
	CodeVerification Code = "verification_exception"

	// CodeSigning marks a credential-signing failure, fatal to that issuance
	// attempt only.
	CodeSigning Code = "signing_failed"

	// CodeProviderExternal marks a failure of a provider's upstream
	// dependency, isolated to that provider's result.
	CodeProviderExternal Code = "provider_external"

	// CodeUnknownProvider marks a requested stamp type with no registered
	// provider.
	CodeUnknownProvider Code = "unknown_provider_type"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
