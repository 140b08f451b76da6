package oidc

import (
	"errors"
	"fmt"
)

// Sentinel errors for response validation.
var (
	// ErrStateMismatch indicates that the response state does not match
	// the request state ID.
	ErrStateMismatch = errors.New("state in response does not match request state")

	// ErrMissingIDToken indicates that a nonce was issued but the
	// response carries no id_token.
	ErrMissingIDToken = errors.New("id_token was expected but not present")

	// ErrUnexpectedIDToken indicates that the response carries an
	// id_token although no nonce was issued.
	ErrUnexpectedIDToken = errors.New("id_token is present but was not requested")

	// ErrMissingCode indicates that a code_verifier was issued but the
	// response carries no authorization code.
	ErrMissingCode = errors.New("authorization code was expected but not present")

	// ErrUnexpectedCode indicates that the response carries a code
	// although no code_verifier was issued.
	ErrUnexpectedCode = errors.New("authorization code is present but was not requested")

	// ErrMissingNonce indicates that the request state carries no nonce
	// although id_token validation requires one.
	ErrMissingNonce = errors.New("request state has no nonce")

	// ErrNonceMismatch indicates that the id_token nonce does not match
	// the request state nonce.
	ErrNonceMismatch = errors.New("nonce in id_token does not match request state")

	// ErrKeyNotFound indicates that no signing key could be resolved
	// for the id_token, even after a key cache reset.
	ErrKeyNotFound = errors.New("no signing key resolved for id_token")

	// ErrMissingSubject indicates an id_token without a sub claim.
	ErrMissingSubject = errors.New("id_token has no subject")

	// ErrSubjectMismatch indicates that the userinfo subject does not
	// match the id_token subject.
	ErrSubjectMismatch = errors.New("userinfo subject does not match id_token subject")

	// ErrHashMismatch indicates an at_hash claim that does not bind the
	// access token.
	ErrHashMismatch = errors.New("at_hash does not match access_token")

	// ErrUnsupportedAlgorithm indicates an id_token signing algorithm
	// the validator cannot handle.
	ErrUnsupportedAlgorithm = errors.New("signing algorithm is not supported")

	// ErrNoKeys indicates a JWKS document without a keys array.
	ErrNoKeys = errors.New("key set document has no keys array")
)

// ConfigurationError indicates missing or inconsistent relying party
// configuration, including required discovery properties absent from
// the provider metadata.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Is checks if the error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// ProtocolError indicates that the callback payload violated an OIDC
// protocol rule: correlation, parameter pairing, token attributes,
// signatures, key resolution or claim reconciliation.
type ProtocolError struct {
	Check   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		if e.Message != "" {
			return fmt.Sprintf("protocol error (%s): %s: %v", e.Check, e.Message, e.Cause)
		}
		return fmt.Sprintf("protocol error (%s): %v", e.Check, e.Cause)
	}
	return fmt.Sprintf("protocol error (%s): %s", e.Check, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProtocolError) Is(target error) bool {
	_, ok := target.(*ProtocolError)
	return ok || errors.Is(e.Cause, target)
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(check string, cause error) *ProtocolError {
	return &ProtocolError{Check: check, Cause: cause}
}

// ServerError carries an in-band error returned by the provider. The
// correlated opaque request data is attached so callers can recover
// their application state even on failure.
type ServerError struct {
	Code        string
	Description string
	URI         string
	Data        any
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("server error: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("server error: %s", e.Code)
}

// Is checks if the error matches the target.
func (e *ServerError) Is(target error) bool {
	_, ok := target.(*ServerError)
	return ok
}
