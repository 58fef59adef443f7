// Package domainerrors provides coded errors shared by services and transports.
//
// Services return errors built with New or Wrap; transports read the Code to pick a
// status and a stable machine-readable reason. Codes never carry subject data.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable reason code.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"

	// Commitment and disclosure codes.
	CodeInvalidAttributeSet Code = "invalid_attribute_set"
	CodeEncodingMismatch    Code = "encoding_mismatch"
	CodeExpiredCommitment   Code = "expired_commitment"
	CodeCommitmentRevoked   Code = "commitment_revoked"
	CodeProofInvalid        Code = "proof_invalid"

	// Replay.
	CodeAlreadyConsumed Code = "already_consumed"

	// Policy.
	CodeUnknownPolicyScope Code = "unknown_policy_scope"
	CodeMalformedPolicy    Code = "malformed_policy"
	CodePolicyConflict     Code = "policy_conflict"

	// Audit chain.
	CodeIntegrityViolation Code = "integrity_violation"
	CodeAuditSuspended     Code = "audit_suspended"
)

// Class groups codes into the engine's error taxonomy.
type Class string

const (
	ClassValidation     Class = "validation"
	ClassCryptographic  Class = "cryptographic"
	ClassReplay         Class = "replay"
	ClassPolicy         Class = "policy"
	ClassIntegrity      Class = "integrity"
	ClassInfrastructure Class = "infrastructure"
)

var codeClasses = map[Code]Class{
	CodeBadRequest:          ClassValidation,
	CodeValidation:          ClassValidation,
	CodeInvalidInput:        ClassValidation,
	CodeInvariantViolation:  ClassValidation,
	CodeInvalidAttributeSet: ClassValidation,
	CodeEncodingMismatch:    ClassCryptographic,
	CodeExpiredCommitment:   ClassCryptographic,
	CodeCommitmentRevoked:   ClassCryptographic,
	CodeProofInvalid:        ClassCryptographic,
	CodeAlreadyConsumed:     ClassReplay,
	CodeUnknownPolicyScope:  ClassPolicy,
	CodeMalformedPolicy:     ClassPolicy,
	CodePolicyConflict:      ClassPolicy,
	CodeIntegrityViolation:  ClassIntegrity,
	CodeAuditSuspended:      ClassIntegrity,
}

// Class returns the taxonomy class for the code. Codes outside the engine
// taxonomy (not found, timeouts, internal failures) are infrastructure.
func (c Code) Class() Class {
	if class, ok := codeClasses[c]; ok {
		return class
	}
	return ClassInfrastructure
}

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether the outermost coded error in err's chain has the given code.
func HasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// CodeOf returns the outermost code in err's chain.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// MessageOf returns the outermost coded message, or the error text for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Is reports whether err is a coded error at all.
func Is(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
